package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bet-tracker-bot/internal/adapters/telemetry"
	"bet-tracker-bot/internal/domain"
	openai "bet-tracker-bot/internal/infra/openai"
)

type fakeClient struct {
	chatResp   openai.ChatCompletionResponse
	chatErr    error
	chatReq    openai.ChatCompletionRequest
	transcribe openai.TranscriptionRequest
	trText     string
	trErr      error
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatReq = req
	return f.chatResp, f.chatErr
}

func (f *fakeClient) CreateTranscription(_ context.Context, req openai.TranscriptionRequest) (openai.TranscriptionResponse, error) {
	f.transcribe = req
	if f.trErr != nil {
		return openai.TranscriptionResponse{}, f.trErr
	}
	return openai.TranscriptionResponse{Text: f.trText, Latency: time.Second}, nil
}

type fakeTracker struct {
	events      []string
	props       []map[string]any
	generations []telemetry.LLMGeneration
}

func (f *fakeTracker) Track(_ context.Context, event string, props map[string]any, _, _ string) {
	f.events = append(f.events, event)
	f.props = append(f.props, props)
}

func (f *fakeTracker) TrackLLMGeneration(_ context.Context, gen telemetry.LLMGeneration) {
	f.generations = append(f.generations, gen)
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OggS-audio"))
	}))
	defer srv.Close()

	client := &fakeClient{trText: "  apostei cinquenta reais no Flamengo  "}
	tr := &fakeTracker{}
	a := NewAdapter(client, tr, "", "", zerolog.Nop())

	text, err := a.Transcribe(context.Background(), srv.URL+"/voice/file_1.oga", domain.ExtractMeta{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "apostei cinquenta reais no Flamengo", text)
	assert.Equal(t, "pt", client.transcribe.Language)
	assert.Equal(t, "whisper-1", client.transcribe.Model)
	assert.Equal(t, "file_1.ogg", client.transcribe.FileName)
	assert.Equal(t, []byte("OggS-audio"), client.transcribe.Audio)
	assert.Equal(t, []string{domain.EventMediaTranscribed}, tr.events)
	require.Len(t, tr.generations, 1)
}

func TestTranscribeDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	tr := &fakeTracker{}
	a := NewAdapter(&fakeClient{}, tr, "", "", zerolog.Nop())
	_, err := a.Transcribe(context.Background(), srv.URL, domain.ExtractMeta{})

	var adapterErr *AdapterError
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, http.StatusNotFound, adapterErr.Status)
	assert.Len(t, []rune(adapterErr.Body), errorBodyLimit)
	assert.Equal(t, []string{domain.EventMediaFailed}, tr.events)
}

func TestDescribeBetSlip(t *testing.T) {
	client := &fakeClient{chatResp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: openai.RoleAssistant, Content: "Flamengo x Vasco - Flamengo vence - odd 1.90"}}},
		Usage:   &openai.ChatCompletionUsage{PromptTokens: 900, CompletionTokens: 40},
	}}
	tr := &fakeTracker{}
	a := NewAdapter(client, tr, "gpt-4o", "", zerolog.Nop())

	text, err := a.DescribeBetSlip(context.Background(), "https://cdn/slip.png", domain.ExtractMeta{UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, text, "odd 1.90")
	require.Len(t, client.chatReq.Messages, 1)
	parts := client.chatReq.Messages[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "https://cdn/slip.png", parts[1].ImageURL.URL)
	assert.Equal(t, []string{domain.EventMediaDescribed}, tr.events)
	require.Len(t, tr.generations, 1)
	assert.Equal(t, 900, tr.generations[0].PromptTokens)
}

func TestDescribeBetSlipUpstreamError(t *testing.T) {
	client := &fakeClient{chatErr: &openai.APIError{StatusCode: 502, Body: "bad gateway"}}
	tr := &fakeTracker{}
	a := NewAdapter(client, tr, "", "", zerolog.Nop())

	_, err := a.DescribeBetSlip(context.Background(), "https://cdn/slip.png", domain.ExtractMeta{})
	var adapterErr *AdapterError
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, "describe_bet_slip", adapterErr.Op)
	assert.Equal(t, 502, adapterErr.Status)
	assert.Equal(t, "bad gateway", adapterErr.Body)
	assert.Equal(t, []string{domain.EventMediaFailed}, tr.events)
}

func TestFileNameFromURL(t *testing.T) {
	assert.Equal(t, "voice.ogg", fileNameFromURL("https://api.telegram.org/file/bot1/voice/voice.oga?x=1"))
	assert.Equal(t, "note.mp3", fileNameFromURL("https://cdn/note.mp3"))
	assert.Equal(t, "audio.ogg", fileNameFromURL("https://cdn/blob"))
}

func TestTranscribeFailureHidesBotToken(t *testing.T) {
	tr := &fakeTracker{}
	a := NewAdapter(&fakeClient{}, tr, "", "", zerolog.Nop())

	// порт 1 закрыт, запрос падает с *url.Error, в тексте которого есть URL
	_, err := a.Transcribe(context.Background(), "http://127.0.0.1:1/file/bot123456:SECRET-TOKEN/voice/file_0.oga", domain.ExtractMeta{UserID: "u1"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
	assert.Contains(t, err.Error(), "/bot<redacted>/voice/file_0.oga")

	require.Equal(t, []string{domain.EventMediaFailed}, tr.events)
	assert.NotContains(t, tr.props[0]["error"], "SECRET-TOKEN")
}

func TestDescribeBetSlipUpstreamErrorHidesBotToken(t *testing.T) {
	tr := &fakeTracker{}
	client := &fakeClient{chatErr: &openai.APIError{StatusCode: http.StatusBadRequest, Body: `{"error":"cannot fetch https://api.telegram.org/file/bot42:SECRET/photos/a.jpg"}`}}
	a := NewAdapter(client, tr, "", "", zerolog.Nop())

	_, err := a.DescribeBetSlip(context.Background(), "https://api.telegram.org/file/bot42:SECRET/photos/a.jpg", domain.ExtractMeta{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")

	var adapterErr *AdapterError
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, http.StatusBadRequest, adapterErr.Status)
	require.Equal(t, []string{domain.EventMediaFailed}, tr.events)
	assert.NotContains(t, tr.props[0]["error"], "SECRET")
}
