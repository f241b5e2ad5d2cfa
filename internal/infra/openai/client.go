package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"bet-tracker-bot/internal/infra/metrics"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client выполняет запросы Chat Completions и Audio Transcriptions.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient создаёт клиента OpenAI.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// APIError возвращается на ответы со статусом >= 400.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("openai: unexpected status %d", e.StatusCode)
}

// CreateChatCompletion вызывает /chat/completions.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	if c.apiKey == "" {
		return ChatCompletionResponse{}, fmt.Errorf("openai: api key is empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("openai: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	respBody, err := c.do(httpReq)
	metrics.ObserveNetworkRequest("openai", "chat_completions", req.Model, start, err)
	if err != nil {
		return ChatCompletionResponse{}, err
	}
	var completion ChatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("openai: decode response: %w", err)
	}
	completion.Latency = time.Since(start)
	if completion.Usage != nil {
		metrics.ObserveLLMGeneration(req.Model, completion.Latency, completion.Usage.PromptTokens, completion.Usage.CompletionTokens, completion.Usage.TotalTokens)
	}
	return completion, nil
}

// TranscriptionRequest описывает запрос на распознавание речи.
type TranscriptionRequest struct {
	Model    string
	Language string
	FileName string
	Audio    []byte
}

// TranscriptionResponse содержит распознанный текст.
type TranscriptionResponse struct {
	Text    string        `json:"text"`
	Latency time.Duration `json:"-"`
}

// CreateTranscription вызывает /audio/transcriptions.
func (c *Client) CreateTranscription(ctx context.Context, req TranscriptionRequest) (TranscriptionResponse, error) {
	if c.apiKey == "" {
		return TranscriptionResponse{}, fmt.Errorf("openai: api key is empty")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fileName := req.FileName
	if fileName == "" {
		fileName = "audio.ogg"
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return TranscriptionResponse{}, fmt.Errorf("openai: build multipart: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return TranscriptionResponse{}, fmt.Errorf("openai: write audio: %w", err)
	}
	_ = mw.WriteField("model", req.Model)
	if req.Language != "" {
		_ = mw.WriteField("language", req.Language)
	}
	if err := mw.Close(); err != nil {
		return TranscriptionResponse{}, fmt.Errorf("openai: close multipart: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return TranscriptionResponse{}, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	respBody, err := c.do(httpReq)
	metrics.ObserveNetworkRequest("openai", "audio_transcriptions", req.Model, start, err)
	if err != nil {
		return TranscriptionResponse{}, err
	}
	var out TranscriptionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return TranscriptionResponse{}, fmt.Errorf("openai: decode response: %w", err)
	}
	out.Latency = time.Since(start)
	return out, nil
}

func (c *Client) do(httpReq *http.Request) ([]byte, error) {
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		var parsed apiErrorResponse
		if err := json.Unmarshal(respBody, &parsed); err == nil {
			apiErr.Message = parsed.Error.Message
		}
		return nil, apiErr
	}
	return respBody, nil
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
