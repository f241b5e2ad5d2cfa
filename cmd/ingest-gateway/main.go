package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bet-tracker-bot/internal/adapters/extractor"
	"bet-tracker-bot/internal/adapters/media"
	"bet-tracker-bot/internal/adapters/repo"
	"bet-tracker-bot/internal/adapters/telegram"
	"bet-tracker-bot/internal/adapters/telemetry"
	"bet-tracker-bot/internal/adapters/webhook"
	"bet-tracker-bot/internal/adapters/whatsapp"
	"bet-tracker-bot/internal/domain"
	"bet-tracker-bot/internal/infra/cache"
	"bet-tracker-bot/internal/infra/config"
	"bet-tracker-bot/internal/infra/db"
	httpinfra "bet-tracker-bot/internal/infra/http"
	"bet-tracker-bot/internal/infra/log"
	"bet-tracker-bot/internal/infra/metrics"
	"bet-tracker-bot/internal/infra/openai"
	"bet-tracker-bot/internal/infra/queue"
	"bet-tracker-bot/internal/usecase/ingest"
	"bet-tracker-bot/internal/usecase/quota"
)

const janitorInterval = time.Hour

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "ingest-gateway")
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("некорректная конфигурация")
	}
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	store := repo.NewPostgres(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("не удалось применить схему")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis недоступен")
		}
	}

	dedup := buildDedup(ctx, cfg, store, redisClient, log.Component(logger, "dedup"))

	llm := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	tracker := telemetry.NewPostHog(cfg.PostHog.APIKey, cfg.PostHog.Host, log.Component(logger, "telemetry"))
	if !tracker.Enabled() {
		logger.Warn().Msg("POSTHOG_API_KEY не задан, аналитика отключена")
	}

	publisher, closePublishers := buildPublishers(cfg, redisClient, logger)
	defer closePublishers()

	svc := ingest.NewService(ingest.Deps{
		Users:     store,
		Bets:      store,
		Queue:     store,
		Dedup:     dedup,
		Extractor: extractor.New(llm, tracker, cfg.OpenAI.Model, log.Component(logger, "extractor")),
		Media:     media.NewAdapter(llm, tracker, cfg.OpenAI.VisionModel, cfg.OpenAI.TranscribeModel, log.Component(logger, "media")),
		Gate:      quota.NewGate(store, store),
		Telemetry: tracker,
		Publisher: publisher,
	}, log.Component(logger, "ingest"))

	hooks := webhook.Config{
		TelegramSecret: cfg.Telegram.WebhookSecret,
		WhatsAppSecret: cfg.WhatsApp.WebhookSecret,
		ProcessTimeout: cfg.RequestTimeout - 5*time.Second,
	}
	if cfg.Telegram.Token != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось создать бота")
		}
		hooks.Telegram = telegram.NewAdapter(botAPI, cfg.Telegram.SendRPS, log.Component(logger, "telegram"))
		logger.Info().Str("bot", botAPI.Self.UserName).Msg("канал telegram включён")
	}
	if cfg.WhatsApp.ChatwootURL != "" {
		hooks.WhatsApp = whatsapp.NewAdapter(cfg.WhatsApp.ChatwootURL, cfg.WhatsApp.AccountID, cfg.WhatsApp.APIToken, cfg.WhatsApp.SendRPS, log.Component(logger, "whatsapp"))
		logger.Info().Msg("канал whatsapp включён")
	}

	srv := httpinfra.NewServer(log.Component(logger, "http"), cfg.RequestTimeout)
	webhook.NewHandler(svc, hooks, log.Component(logger, "webhook")).Routes(srv.Router)

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, log.Component(logger, "metrics"), cfg.MetricsAddr)
	}

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка шлюза")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP сервер не завершился корректно")
	}
}

// buildDedup выбирает хранилище отметок и запускает очистку устаревших.
func buildDedup(ctx context.Context, cfg config.AppConfig, store *repo.Postgres, client *redis.Client, logger zerolog.Logger) domain.Deduplicator {
	backend := cfg.DedupBackend
	if backend == "" || backend == "auto" {
		backend = "postgres"
		if client != nil {
			backend = "redis"
		}
	}
	logger.Info().Str("backend", backend).Dur("ttl", cfg.DedupTTL).Msg("dedup: хранилище выбрано")

	switch backend {
	case "redis":
		// ключи истекают сами
		return cache.NewRedisDedup(client, cfg.DedupTTL)
	case "memory":
		mem := cache.NewMemoryDedup(cfg.DedupTTL)
		go every(ctx, janitorInterval, func() {
			if n := mem.Sweep(); n > 0 {
				logger.Debug().Int("removed", n).Msg("dedup: очищены отметки")
			}
		})
		return mem
	default:
		go every(ctx, janitorInterval, func() {
			n, err := store.PurgeProcessedUpdates(ctx, time.Now().Add(-cfg.DedupTTL))
			if err != nil {
				logger.Warn().Err(err).Msg("dedup: не удалось очистить processed_updates")
				return
			}
			if n > 0 {
				logger.Debug().Int64("removed", n).Msg("dedup: очищены отметки")
			}
		})
		return store
	}
}

// buildPublishers подключает брокеры событий. Без брокеров возвращает nil.
func buildPublishers(cfg config.AppConfig, client *redis.Client, logger zerolog.Logger) (domain.BetEventPublisher, func()) {
	var (
		fanout  queue.Fanout
		closers []func() error
	)
	if cfg.Events.AMQPURL != "" {
		rabbit, err := queue.NewRabbitPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к RabbitMQ")
		}
		fanout = append(fanout, rabbit)
		closers = append(closers, rabbit.Close)
	}
	if cfg.Events.KafkaBrokers != "" {
		kafka := queue.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.Topic)
		fanout = append(fanout, kafka)
		closers = append(closers, kafka.Close)
	}
	if cfg.Events.RedisKey != "" && client != nil {
		fanout = append(fanout, queue.NewRedisEventQueue(client, cfg.Events.RedisKey))
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn().Err(err).Msg("events: ошибка закрытия издателя")
			}
		}
	}
	if len(fanout) == 0 {
		return nil, closeAll
	}
	logger.Info().Int("publishers", len(fanout)).Msg("events: публикация bet_created включена")
	return fanout, closeAll
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
