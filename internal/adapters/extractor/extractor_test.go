package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bet-tracker-bot/internal/adapters/telemetry"
	"bet-tracker-bot/internal/domain"
	openai "bet-tracker-bot/internal/infra/openai"
)

type scriptedClient struct {
	responses []openai.ChatCompletionResponse
	errs      []error
	requests  []openai.ChatCompletionRequest
}

func (s *scriptedClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	if i >= len(s.responses) {
		return openai.ChatCompletionResponse{}, errors.New("no scripted response")
	}
	return s.responses[i], nil
}

type recordingTracker struct {
	events []string
	gens   int
}

func (r *recordingTracker) Track(_ context.Context, event string, _ map[string]any, _, _ string) {
	r.events = append(r.events, event)
}

func (r *recordingTracker) TrackLLMGeneration(context.Context, telemetry.LLMGeneration) {
	r.gens++
}

func contentResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: openai.RoleAssistant, Content: content}, FinishReason: "stop"}},
		Usage:   &openai.ChatCompletionUsage{PromptTokens: 500, CompletionTokens: 80},
	}
}

const singleBetJSON = `{"bet_type":"single","sport":"Basquete","league":"NBA","matches":[{"description":"Lakers vs Warriors","bet_description":"LeBron 25+ pontos","odds":1.85,"match_date":null,"is_combined_odd":false}],"stake_amount":50,"bet_date":"2026-10-19","odds_are_individual":true}`

func newTestExtractor(client chatClient, tr tracker) *Extractor {
	e := New(client, tr, "gpt-4o-mini", zerolog.Nop())
	e.now = func() time.Time { return time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC) }
	return e
}

func TestPreFilterSkipsWithoutLLMCall(t *testing.T) {
	for _, input := range []string{"oi", "  Olá!  ", "BOM DIA", "boa noite.", "valeu", "kkk", "tudo ok?", ""} {
		client := &scriptedClient{}
		tr := &recordingTracker{}
		got, err := newTestExtractor(client, tr).Extract(context.Background(), input, domain.ExtractMeta{})
		require.NoError(t, err, input)
		assert.Nil(t, got, input)
		assert.Empty(t, client.requests, "LLM must not be called for %q", input)
		assert.Equal(t, []string{domain.EventExtractionSkipped}, tr.events, input)
	}
}

func TestPreFilterPassesBetText(t *testing.T) {
	for _, input := range []string{
		"Lakers vs Warriors - LeBron 25+ pts - odd 1.85 - R$50",
		"odd 2",
		"fla x flu",
		"over 2.5",
	} {
		assert.Empty(t, skipReason(input), input)
	}
}

func TestExtractSingleBet(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{contentResponse(singleBetJSON)}}
	tr := &recordingTracker{}
	got, err := newTestExtractor(client, tr).Extract(context.Background(), "Lakers vs Warriors - LeBron 25+ pts - odd 1.85 - R$50", domain.ExtractMeta{UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.BetSingle, got.BetType)
	require.Len(t, got.Matches, 1)
	assert.InDelta(t, 1.85, got.Matches[0].Odds, 1e-9)
	assert.InDelta(t, 50, got.StakeAmount, 1e-9)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	require.NotNil(t, req.ResponseFormat)
	assert.True(t, req.ResponseFormat.JSONSchema.Strict)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, multiplyOddsTool, req.Tools[0].Function.Name)
	assert.Contains(t, req.Messages[0].Content, "2026-10-19")
	assert.Equal(t, []string{domain.EventBetExtracted}, tr.events)
	assert.Equal(t, 1, tr.gens)
}

func TestExtractWithToolCall(t *testing.T) {
	toolResp := openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatMessage{Role: openai.RoleAssistant, ToolCalls: []openai.ToolCall{{
			ID: "call_1", Type: "function",
			Function: openai.FunctionCall{Name: multiplyOddsTool, Arguments: `{"odds":[1.5,2,0.5]}`},
		}}},
		FinishReason: "tool_calls",
	}}}
	final := `{"bet_type":"multiple","sport":"Futebol","league":null,"matches":[{"description":"Fla x Flu","bet_description":"Fla vence","odds":1.5,"match_date":null,"is_combined_odd":false},{"description":"Vasco x Bota","bet_description":"Ambas marcam","odds":2,"match_date":null,"is_combined_odd":false}],"stake_amount":10,"bet_date":"2026-10-19","odds_are_individual":true}`
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{toolResp, contentResponse(final)}}
	tr := &recordingTracker{}

	got, err := newTestExtractor(client, tr).Extract(context.Background(), "multipla fla e vasco odds 1.5 e 2", domain.ExtractMeta{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Matches, 2)

	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, openai.RoleAssistant, second[2].Role)
	assert.Equal(t, openai.RoleTool, second[3].Role)
	assert.Equal(t, "call_1", second[3].ToolCallID)
	assert.JSONEq(t, `{"combined_odds":3.03}`, second[3].Content)
	assert.Equal(t, 2, tr.gens)
}

func TestExtractKeepsZeroOdds(t *testing.T) {
	// коэффициент 0 поднимается до 1.01 при нормализации, а не отбрасывается
	zero := `{"bet_type":"single","sport":"Futebol","league":null,"matches":[{"description":"Fla x Flu","bet_description":"Fla vence","odds":0,"match_date":null,"is_combined_odd":false}],"stake_amount":20,"bet_date":"2026-10-19","odds_are_individual":true}`
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{contentResponse(zero)}}
	tr := &recordingTracker{}

	got, err := newTestExtractor(client, tr).Extract(context.Background(), "Fla vence R$ 20", domain.ExtractMeta{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, got.Matches[0].Odds)
	assert.Equal(t, []string{domain.EventBetExtracted}, tr.events)
}

func TestExtractFailuresReturnNil(t *testing.T) {
	cases := map[string]*scriptedClient{
		"upstream error": {errs: []error{&openai.APIError{StatusCode: 500}}},
		"malformed json": {responses: []openai.ChatCompletionResponse{contentResponse(`{"bet_type":`)}},
		"empty legs":     {responses: []openai.ChatCompletionResponse{contentResponse(`{"bet_type":"single","sport":"Futebol","league":null,"matches":[],"stake_amount":0,"bet_date":"2026-10-19","odds_are_individual":false}`)}},
		"blank leg":      {responses: []openai.ChatCompletionResponse{contentResponse(`{"bet_type":"single","sport":"Futebol","league":null,"matches":[{"description":"  ","bet_description":"x","odds":1.5,"match_date":null,"is_combined_odd":false}],"stake_amount":0,"bet_date":"2026-10-19","odds_are_individual":false}`)}},
		"bad bet type":   {responses: []openai.ChatCompletionResponse{contentResponse(`{"bet_type":"accumulator","sport":"Futebol","league":null,"matches":[{"description":"a","bet_description":"b","odds":1.5,"match_date":null,"is_combined_odd":false}],"stake_amount":0,"bet_date":"2026-10-19","odds_are_individual":false}`)}},
		"negative odds":  {responses: []openai.ChatCompletionResponse{contentResponse(`{"bet_type":"single","sport":"Futebol","league":null,"matches":[{"description":"a","bet_description":"b","odds":-2,"match_date":null,"is_combined_odd":false}],"stake_amount":0,"bet_date":"2026-10-19","odds_are_individual":false}`)}},
		"no choices":     {responses: []openai.ChatCompletionResponse{{}}},
	}
	for name, client := range cases {
		t.Run(name, func(t *testing.T) {
			tr := &recordingTracker{}
			got, err := newTestExtractor(client, tr).Extract(context.Background(), "Flamengo vence odd 1.5 R$ 20", domain.ExtractMeta{})
			require.NoError(t, err)
			assert.Nil(t, got)
			assert.Equal(t, []string{domain.EventExtractionFailed}, tr.events)
		})
	}
}

func TestMultiplyOdds(t *testing.T) {
	assert.InDelta(t, 1.0, MultiplyOdds(nil), 1e-9)
	assert.InDelta(t, 3.0, MultiplyOdds([]float64{1.5, 2}), 1e-9)
	assert.InDelta(t, 1.01*2, MultiplyOdds([]float64{0.3, 2}), 1e-9)
}
