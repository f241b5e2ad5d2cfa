// Package telemetry отправляет аналитические события и учёт стоимости LLM в PostHog.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bet-tracker-bot/internal/domain"
	"bet-tracker-bot/internal/infra/metrics"
)

const sendTimeout = 3 * time.Second

// PostHog реализует domain.Telemetry поверх HTTP capture API.
type PostHog struct {
	http   *http.Client
	host   string
	apiKey string
	log    zerolog.Logger
	now    func() time.Time
}

var _ domain.Telemetry = (*PostHog)(nil)

// NewPostHog создаёт эмиттер. Пустой apiKey превращает все вызовы в no-op.
func NewPostHog(apiKey, host string, logger zerolog.Logger) *PostHog {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = "https://us.i.posthog.com"
	}
	return &PostHog{
		http:   &http.Client{Timeout: sendTimeout},
		host:   host,
		apiKey: strings.TrimSpace(apiKey),
		log:    logger,
		now:    time.Now,
	}
}

// Enabled сообщает, настроен ли ключ.
func (p *PostHog) Enabled() bool {
	return p != nil && p.apiKey != ""
}

type captureRequest struct {
	APIKey     string         `json:"api_key"`
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties"`
	Timestamp  string         `json:"timestamp"`
}

// Track отправляет событие. Ошибки логируются и не возвращаются.
func (p *PostHog) Track(ctx context.Context, event string, props map[string]any, distinctID, traceID string) {
	if event == "" {
		return
	}
	metrics.IncEvent(event)
	if !p.Enabled() {
		return
	}
	properties := make(map[string]any, len(props)+2)
	for k, v := range props {
		properties[k] = v
	}
	if traceID != "" {
		properties["$ai_trace_id"] = traceID
	}
	if distinctID == "" {
		distinctID = "anonymous"
		properties["$process_person_profile"] = false
	}
	p.capture(ctx, captureRequest{Event: event, DistinctID: distinctID, Properties: properties})
}

// Identify обновляет свойства пользователя.
func (p *PostHog) Identify(ctx context.Context, userID string, props map[string]any) {
	if !p.Enabled() || userID == "" {
		return
	}
	set := make(map[string]any, len(props))
	for k, v := range props {
		set[k] = v
	}
	p.capture(ctx, captureRequest{
		Event:      "$identify",
		DistinctID: userID,
		Properties: map[string]any{"$set": set},
	})
}

// LLMGeneration описывает один вызов модели для учёта стоимости.
type LLMGeneration struct {
	DistinctID       string
	TraceID          string
	Model            string
	Provider         string
	Operation        string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	Err              error
	Extra            map[string]any
}

// TrackLLMGeneration отправляет событие $ai_generation с оценкой стоимости.
func (p *PostHog) TrackLLMGeneration(ctx context.Context, gen LLMGeneration) {
	provider := gen.Provider
	if provider == "" {
		provider = "openai"
	}
	cost := EstimateCostUSD(gen.Model, gen.PromptTokens, gen.CompletionTokens)
	metrics.AddLLMCost(gen.Model, cost)

	props := map[string]any{
		"$ai_model":          gen.Model,
		"$ai_provider":       provider,
		"$ai_input_tokens":   gen.PromptTokens,
		"$ai_output_tokens":  gen.CompletionTokens,
		"$ai_latency":        gen.Latency.Seconds(),
		"$ai_total_cost_usd": cost,
		"$ai_is_error":       gen.Err != nil,
	}
	if gen.Operation != "" {
		props["operation"] = gen.Operation
	}
	if gen.Err != nil {
		props["$ai_error"] = gen.Err.Error()
	}
	for k, v := range gen.Extra {
		props[k] = v
	}
	p.Track(ctx, domain.EventLLMGeneration, props, gen.DistinctID, gen.TraceID)
}

func (p *PostHog) capture(ctx context.Context, payload captureRequest) {
	payload.APIKey = p.apiKey
	payload.Timestamp = p.now().UTC().Format(time.RFC3339Nano)
	if err := p.post(ctx, payload); err != nil {
		p.log.Warn().Err(err).Str("event", payload.Event).Msg("telemetry: не удалось отправить событие")
	}
}

func (p *PostHog) post(ctx context.Context, payload captureRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("posthog: marshal: %w", err)
	}
	// отмена входящего запроса не должна терять событие
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/capture/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posthog: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.http.Do(req)
	if err == nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 300 {
			err = fmt.Errorf("posthog: unexpected status %d", resp.StatusCode)
		}
	}
	metrics.ObserveNetworkRequest("posthog", "capture", payload.Event, start, err)
	return err
}
