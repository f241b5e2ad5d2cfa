package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChatMessageMarshalParts(t *testing.T) {
	msg := ChatMessage{Role: RoleUser, Parts: []ContentPart{TextPart("descreva"), ImagePart("https://img/1.png")}}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	parts, ok := decoded["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected content array with 2 parts, got %s", raw)
	}
}

func TestChatMessageToolCallWithoutContent(t *testing.T) {
	msg := ChatMessage{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Type: "function", Function: FunctionCall{Name: "multiply_odds", Arguments: `{"odds":[1.5,2]}`}}}}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), `"content"`) {
		t.Fatalf("content must be omitted for pure tool call: %s", raw)
	}

	var back ChatMessage
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"multiply_odds","arguments":"{}"}}]}`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.ToolCalls) != 1 || back.Content != "" {
		t.Fatalf("unexpected decoded message: %+v", back)
	}
}

func TestCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req ChatCompletionRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.JSONSchema == nil || !req.ResponseFormat.JSONSchema.Strict {
			t.Errorf("expected strict json schema in request: %s", body)
		}
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Second)
	resp, err := c.CreateChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
		ResponseFormat: &ChatCompletionResponseFormat{
			Type:       ResponseFormatTypeJSONSchema,
			JSONSchema: &JSONSchema{Name: "t", Schema: json.RawMessage(`{"type":"object"}`), Strict: true},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != `{"ok":true}` {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Fatalf("usage not decoded: %+v", resp.Usage)
	}
}

func TestCreateChatCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Second)
	_, err := c.CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != "rate limited" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestCreateTranscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "pt" {
			t.Errorf("unexpected form: %v", r.MultipartForm.Value)
		}
		_, _ = w.Write([]byte(`{"text":"apostei 50 reais"}`))
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Second)
	resp, err := c.CreateTranscription(context.Background(), TranscriptionRequest{Model: "whisper-1", Language: "pt", Audio: []byte("OggS")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "apostei 50 reais" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestEmptyAPIKey(t *testing.T) {
	c := NewClient("", "", 0)
	if _, err := c.CreateChatCompletion(context.Background(), ChatCompletionRequest{}); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
