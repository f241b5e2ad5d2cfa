// Package extractor извлекает структурированную ставку из свободного текста через LLM.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bet-tracker-bot/internal/adapters/telemetry"
	"bet-tracker-bot/internal/domain"
	openai "bet-tracker-bot/internal/infra/openai"
)

const (
	maxInputRunes = 4000
	oddsFloor     = 1.01
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type tracker interface {
	Track(ctx context.Context, event string, props map[string]any, distinctID, traceID string)
	TrackLLMGeneration(ctx context.Context, gen telemetry.LLMGeneration)
}

// Extractor реализует domain.BetExtractor.
type Extractor struct {
	client   chatClient
	tracker  tracker
	model    string
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

var _ domain.BetExtractor = (*Extractor)(nil)

// New создаёт движок извлечения ставок.
func New(client chatClient, tracker tracker, model string, logger zerolog.Logger) *Extractor {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Extractor{
		client:   client,
		tracker:  tracker,
		model:    model,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger,
		now:      time.Now,
	}
}

// Extract возвращает кандидата в ставку или nil, если текст ставкой не является
// либо модель не справилась. Ошибки внешних вызовов наружу не пробрасываются.
func (e *Extractor) Extract(ctx context.Context, text string, meta domain.ExtractMeta) (*domain.CandidateBet, error) {
	if reason := skipReason(text); reason != "" {
		e.tracker.Track(ctx, domain.EventExtractionSkipped, map[string]any{
			"reason":  reason,
			"channel": string(meta.Channel),
			"source":  string(meta.Source),
		}, meta.UserID, meta.TraceID)
		return nil, nil
	}

	candidate, err := e.extract(ctx, text, meta)
	if err != nil {
		e.log.Warn().Err(err).Str("trace_id", meta.TraceID).Msg("extractor: не удалось извлечь ставку")
		e.tracker.Track(ctx, domain.EventExtractionFailed, map[string]any{
			"error":   err.Error(),
			"channel": string(meta.Channel),
			"source":  string(meta.Source),
		}, meta.UserID, meta.TraceID)
		return nil, nil
	}

	e.tracker.Track(ctx, domain.EventBetExtracted, map[string]any{
		"bet_type":   string(candidate.BetType),
		"sport":      candidate.Sport,
		"legs":       len(candidate.Matches),
		"channel":    string(meta.Channel),
		"source":     string(meta.Source),
		"individual": candidate.OddsAreIndividual,
	}, meta.UserID, meta.TraceID)
	return candidate, nil
}

func (e *Extractor) extract(ctx context.Context, text string, meta domain.ExtractMeta) (*domain.CandidateBet, error) {
	today := e.now().In(domain.QuotaZone).Format("2006-01-02")
	messages := []openai.ChatMessage{
		{Role: openai.RoleSystem, Content: systemPrompt + "\nHoje é " + today + "."},
		{Role: openai.RoleUser, Content: clipRunes(strings.TrimSpace(text), maxInputRunes)},
	}

	resp, err := e.complete(ctx, messages, meta, "extract")
	if err != nil {
		return nil, err
	}
	msg := resp.Choices[0].Message

	if len(msg.ToolCalls) > 0 {
		messages = append(messages, openai.ChatMessage{Role: openai.RoleAssistant, ToolCalls: msg.ToolCalls})
		for _, call := range msg.ToolCalls {
			messages = append(messages, openai.ChatMessage{
				Role:       openai.RoleTool,
				ToolCallID: call.ID,
				Content:    runTool(call),
			})
		}
		resp, err = e.complete(ctx, messages, meta, "extract_after_tool")
		if err != nil {
			return nil, err
		}
		msg = resp.Choices[0].Message
		if len(msg.ToolCalls) > 0 {
			return nil, fmt.Errorf("extractor: повторный вызов инструмента")
		}
	}

	return e.parse(msg.Content)
}

func (e *Extractor) complete(ctx context.Context, messages []openai.ChatMessage, meta domain.ExtractMeta, op string) (openai.ChatCompletionResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		MaxTokens:   1200,
		Messages:    messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type:       openai.ResponseFormatTypeJSONSchema,
			JSONSchema: &openai.JSONSchema{Name: schemaName, Schema: betSchema, Strict: true},
		},
		Tools: []openai.Tool{{
			Type: "function",
			Function: openai.FunctionDef{
				Name:        multiplyOddsTool,
				Description: "Multiplica as odds individuais das seleções e devolve a odd combinada.",
				Parameters:  multiplyOddsParams,
				Strict:      true,
			},
		}},
		ToolChoice: "auto",
	}
	resp, err := e.client.CreateChatCompletion(ctx, req)

	gen := telemetry.LLMGeneration{
		DistinctID: meta.UserID,
		TraceID:    meta.TraceID,
		Model:      e.model,
		Operation:  op,
		Latency:    resp.Latency,
		Err:        err,
	}
	if resp.Usage != nil {
		gen.PromptTokens = resp.Usage.PromptTokens
		gen.CompletionTokens = resp.Usage.CompletionTokens
	}
	e.tracker.TrackLLMGeneration(ctx, gen)

	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai completion: пустой ответ")
	}
	return resp, nil
}

func (e *Extractor) parse(content string) (*domain.CandidateBet, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("extractor: пустой контент")
	}
	var candidate domain.CandidateBet
	if err := json.Unmarshal([]byte(content), &candidate); err != nil {
		return nil, fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	candidate.Sport = strings.TrimSpace(candidate.Sport)
	candidate.BetType = domain.BetType(strings.ToLower(strings.TrimSpace(string(candidate.BetType))))
	for i := range candidate.Matches {
		candidate.Matches[i].Description = strings.TrimSpace(candidate.Matches[i].Description)
		candidate.Matches[i].BetDescription = strings.TrimSpace(candidate.Matches[i].BetDescription)
	}
	if err := e.validate.Struct(candidate); err != nil {
		return nil, fmt.Errorf("валидация кандидата: %w", err)
	}
	return &candidate, nil
}

type multiplyArgs struct {
	Odds []float64 `json:"odds"`
}

func runTool(call openai.ToolCall) string {
	if call.Function.Name != multiplyOddsTool {
		return `{"error":"unknown tool"}`
	}
	var args multiplyArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return `{"error":"invalid arguments"}`
	}
	out, _ := json.Marshal(map[string]any{"combined_odds": MultiplyOdds(args.Odds)})
	return string(out)
}

// MultiplyOdds перемножает коэффициенты, поднимая каждый до 1.01. Пустой список даёт 1.
func MultiplyOdds(odds []float64) float64 {
	floor := decimal.NewFromFloat(oddsFloor)
	product := decimal.NewFromInt(1)
	for _, o := range odds {
		d := decimal.NewFromFloat(o)
		if d.LessThan(floor) {
			d = floor
		}
		product = product.Mul(d)
	}
	return product.Round(4).InexactFloat64()
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
