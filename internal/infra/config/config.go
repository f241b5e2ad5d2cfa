package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию шлюза приёма ставок.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"5"`

	RedisAddr    string        `envconfig:"REDIS_ADDR"`
	// DedupBackend: auto (redis при REDIS_ADDR, иначе postgres), redis, postgres, memory.
	DedupBackend string        `envconfig:"DEDUP_BACKEND" default:"auto"`
	DedupTTL     time.Duration `envconfig:"DEDUP_TTL" default:"72h"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`

	Telegram struct {
		Token         string  `envconfig:"TG_BOT_TOKEN"`
		WebhookSecret string  `envconfig:"TG_WEBHOOK_SECRET"`
		SendRPS       float64 `envconfig:"TG_SEND_RPS" default:"25"`
	} `envconfig:""`

	WhatsApp struct {
		ChatwootURL   string  `envconfig:"CHATWOOT_URL"`
		AccountID     string  `envconfig:"CHATWOOT_ACCOUNT_ID"`
		APIToken      string  `envconfig:"CHATWOOT_API_TOKEN"`
		WebhookSecret string  `envconfig:"WHATSAPP_WEBHOOK_SECRET"`
		SendRPS       float64 `envconfig:"WHATSAPP_SEND_RPS" default:"10"`
	} `envconfig:""`

	OpenAI struct {
		APIKey          string        `envconfig:"OPENAI_API_KEY"`
		BaseURL         string        `envconfig:"OPENAI_BASE_URL"`
		Model           string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		VisionModel     string        `envconfig:"OPENAI_VISION_MODEL" default:"gpt-4o"`
		TranscribeModel string        `envconfig:"OPENAI_TRANSCRIBE_MODEL" default:"whisper-1"`
		Timeout         time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	PostHog struct {
		APIKey string `envconfig:"POSTHOG_API_KEY"`
		Host   string `envconfig:"POSTHOG_HOST" default:"https://us.i.posthog.com"`
	} `envconfig:""`

	Events struct {
		AMQPURL      string `envconfig:"AMQP_URL"`
		Exchange     string `envconfig:"BET_EVENTS_EXCHANGE" default:"bets"`
		KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
		Topic        string `envconfig:"BET_EVENTS_TOPIC" default:"bet_created"`
		RedisKey     string `envconfig:"BET_EVENTS_REDIS_KEY"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Validate проверяет обязательные параметры для запуска шлюза.
func (c AppConfig) Validate() error {
	if c.PGDSN == "" {
		return fmt.Errorf("PG_DSN is required")
	}
	if c.Telegram.Token == "" && c.WhatsApp.ChatwootURL == "" {
		return fmt.Errorf("at least one channel must be configured (TG_BOT_TOKEN or CHATWOOT_URL)")
	}
	if c.WhatsApp.ChatwootURL != "" && (c.WhatsApp.AccountID == "" || c.WhatsApp.APIToken == "") {
		return fmt.Errorf("CHATWOOT_ACCOUNT_ID and CHATWOOT_API_TOKEN are required with CHATWOOT_URL")
	}
	switch c.DedupBackend {
	case "", "auto", "postgres", "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required with DEDUP_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown DEDUP_BACKEND %q", c.DedupBackend)
	}
	if c.Events.RedisKey != "" && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required with BET_EVENTS_REDIS_KEY")
	}
	return nil
}
