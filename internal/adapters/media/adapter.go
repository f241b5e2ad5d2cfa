// Package media превращает голосовые сообщения и скриншоты купонов в текст.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bet-tracker-bot/internal/adapters/telemetry"
	"bet-tracker-bot/internal/domain"
	applog "bet-tracker-bot/internal/infra/log"
	"bet-tracker-bot/internal/infra/metrics"
	openai "bet-tracker-bot/internal/infra/openai"
)

const (
	maxAudioBytes  = 25 << 20
	errorBodyLimit = 500
	transcribeLang = "pt"
)

const betSlipInstruction = `Você está analisando a imagem de um bilhete de aposta esportiva.
Descreva em português, de forma objetiva, tudo o que for relevante para registrar a aposta:
- o esporte e a liga/campeonato, se visíveis;
- cada seleção (jogo/evento e o mercado escolhido) em uma linha separada, com a odd de cada seleção;
- a odd total/combinada, se aparecer, e se as odds exibidas são individuais por seleção ou já combinadas;
- o valor apostado (stake) e o retorno potencial, se aparecerem;
- a data dos jogos, se visível.
Não invente informações que não estejam na imagem. Se a imagem não for um bilhete de aposta, diga isso claramente.`

type openAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.TranscriptionRequest) (openai.TranscriptionResponse, error)
}

type tracker interface {
	Track(ctx context.Context, event string, props map[string]any, distinctID, traceID string)
	TrackLLMGeneration(ctx context.Context, gen telemetry.LLMGeneration)
}

// AdapterError возвращается, когда внешний сервис ответил не 2xx.
type AdapterError struct {
	Op     string
	Status int
	Body   string
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("media %s: upstream status %d: %s", e.Op, e.Status, e.Body)
}

// Adapter реализует domain.MediaAdapter через OpenAI.
type Adapter struct {
	client          openAIClient
	download        *http.Client
	tracker         tracker
	visionModel     string
	transcribeModel string
	log             zerolog.Logger
}

var _ domain.MediaAdapter = (*Adapter)(nil)

// NewAdapter создаёт адаптер медиа.
func NewAdapter(client openAIClient, tracker tracker, visionModel, transcribeModel string, logger zerolog.Logger) *Adapter {
	if visionModel == "" {
		visionModel = "gpt-4o"
	}
	if transcribeModel == "" {
		transcribeModel = "whisper-1"
	}
	return &Adapter{
		client:          client,
		download:        &http.Client{Timeout: 30 * time.Second},
		tracker:         tracker,
		visionModel:     visionModel,
		transcribeModel: transcribeModel,
		log:             logger,
	}
}

// Transcribe скачивает аудио и распознаёт речь на португальском.
func (a *Adapter) Transcribe(ctx context.Context, audioURL string, meta domain.ExtractMeta) (string, error) {
	audio, err := a.fetch(ctx, audioURL)
	if err != nil {
		err = applog.RedactError(err)
		a.fail(ctx, "transcribe", err, meta)
		return "", err
	}
	resp, err := a.client.CreateTranscription(ctx, openai.TranscriptionRequest{
		Model:    a.transcribeModel,
		Language: transcribeLang,
		FileName: fileNameFromURL(audioURL),
		Audio:    audio,
	})
	if err != nil {
		err = applog.RedactError(wrapUpstream("transcribe", err))
		a.fail(ctx, "transcribe", err, meta)
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	a.tracker.TrackLLMGeneration(ctx, telemetry.LLMGeneration{
		DistinctID: meta.UserID,
		TraceID:    meta.TraceID,
		Model:      a.transcribeModel,
		Operation:  "transcribe",
		Latency:    resp.Latency,
	})
	a.tracker.Track(ctx, domain.EventMediaTranscribed, map[string]any{
		"channel":     string(meta.Channel),
		"text_length": len([]rune(text)),
		"audio_bytes": len(audio),
	}, meta.UserID, meta.TraceID)
	return text, nil
}

// DescribeBetSlip описывает скриншот купона через vision-модель.
func (a *Adapter) DescribeBetSlip(ctx context.Context, imageURL string, meta domain.ExtractMeta) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.visionModel,
		Temperature: 0,
		MaxTokens:   800,
		Messages: []openai.ChatMessage{{
			Role:  openai.RoleUser,
			Parts: []openai.ContentPart{openai.TextPart(betSlipInstruction), openai.ImagePart(imageURL)},
		}},
	}
	resp, err := a.client.CreateChatCompletion(ctx, req)
	gen := telemetry.LLMGeneration{
		DistinctID: meta.UserID,
		TraceID:    meta.TraceID,
		Model:      a.visionModel,
		Operation:  "describe_bet_slip",
		Latency:    resp.Latency,
		Err:        err,
	}
	if resp.Usage != nil {
		gen.PromptTokens = resp.Usage.PromptTokens
		gen.CompletionTokens = resp.Usage.CompletionTokens
	}
	a.tracker.TrackLLMGeneration(ctx, gen)
	if err != nil {
		err = applog.RedactError(wrapUpstream("describe_bet_slip", err))
		a.fail(ctx, "describe_bet_slip", err, meta)
		return "", err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("media describe_bet_slip: пустой ответ модели")
		a.fail(ctx, "describe_bet_slip", err, meta)
		return "", err
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	a.tracker.Track(ctx, domain.EventMediaDescribed, map[string]any{
		"channel":     string(meta.Channel),
		"text_length": len([]rune(text)),
	}, meta.UserID, meta.TraceID)
	return text, nil
}

func (a *Adapter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("media download: build request: %w", err)
	}
	start := time.Now()
	resp, err := a.download.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("media", "download", "audio", start, err)
		return nil, fmt.Errorf("media download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := &AdapterError{Op: "download", Status: resp.StatusCode, Body: truncate(string(body))}
		metrics.ObserveNetworkRequest("media", "download", "audio", start, err)
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	metrics.ObserveNetworkRequest("media", "download", "audio", start, err)
	if err != nil {
		return nil, fmt.Errorf("media download: read body: %w", err)
	}
	return data, nil
}

func (a *Adapter) fail(ctx context.Context, op string, err error, meta domain.ExtractMeta) {
	props := map[string]any{
		"operation": op,
		"channel":   string(meta.Channel),
		"error":     applog.Redact(err.Error()),
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		props["status"] = adapterErr.Status
	}
	a.log.Warn().Str("error", applog.Redact(err.Error())).Str("op", op).Msg("media: ошибка внешнего сервиса")
	a.tracker.Track(ctx, domain.EventMediaFailed, props, meta.UserID, meta.TraceID)
}

func wrapUpstream(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &AdapterError{Op: op, Status: apiErr.StatusCode, Body: truncate(apiErr.Body)}
	}
	return fmt.Errorf("media %s: %w", op, err)
}

func truncate(body string) string {
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= errorBodyLimit {
		return string(runes)
	}
	return string(runes[:errorBodyLimit])
}

func fileNameFromURL(raw string) string {
	clean := raw
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	name := path.Base(clean)
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return "audio.ogg"
	}
	// Telegram отдаёт голосовые как .oga, Whisper принимает их под именем .ogg
	if strings.HasSuffix(name, ".oga") {
		return strings.TrimSuffix(name, ".oga") + ".ogg"
	}
	return name
}
