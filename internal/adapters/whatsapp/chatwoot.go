// Package whatsapp принимает сообщения WhatsApp через вебхуки Chatwoot и отвечает через его API.
package whatsapp

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
	"golang.org/x/time/rate"

	"bet-tracker-bot/internal/domain"
	"bet-tracker-bot/internal/infra/metrics"
	"bet-tracker-bot/internal/usecase/ingest"
)

// Шаблоны экранированы под Markdown Telegram, WhatsApp показал бы обратные слэши как есть.
var unescapeMarkdown = strings.NewReplacer(`\_`, "_", `\*`, "*", "\\`", "`", `\[`, "[")

// Adapter реализует ingest.ChannelAdapter поверх Chatwoot.
type Adapter struct {
	http      *http.Client
	baseURL   string
	accountID string
	token     string
	limiter   *rate.Limiter
	log       zerolog.Logger
}

var _ ingest.ChannelAdapter = (*Adapter)(nil)

// NewAdapter создаёт адаптер Chatwoot.
func NewAdapter(baseURL, accountID, token string, sendRPS float64, logger zerolog.Logger) *Adapter {
	limit := rate.Inf
	if sendRPS > 0 {
		limit = rate.Limit(sendRPS)
	}
	return &Adapter{
		http:      &http.Client{Timeout: 15 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		token:     token,
		limiter:   rate.NewLimiter(limit, 1),
		log:       logger,
	}
}

// Channel возвращает domain.ChannelWhatsApp.
func (a *Adapter) Channel() domain.Channel {
	return domain.ChannelWhatsApp
}

type outgoingMessage struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private"`
}

// Send публикует исходящее сообщение в беседу Chatwoot. chatID — id беседы.
func (a *Adapter) Send(ctx context.Context, chatID string, reply ingest.Reply) error {
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("chatwoot: empty conversation id")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chatwoot: rate limiter: %w", err)
	}
	body, err := json.Marshal(outgoingMessage{
		Content:     unescapeMarkdown.Replace(reply.Text),
		MessageType: "outgoing",
	})
	if err != nil {
		return fmt.Errorf("chatwoot: marshal: %w", err)
	}
	url := fmt.Sprintf("%s/api/v1/accounts/%s/conversations/%s/messages", a.baseURL, a.accountID, chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chatwoot: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", a.token)

	start := time.Now()
	resp, err := a.http.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err = fmt.Errorf("chatwoot: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
	}
	metrics.ObserveNetworkRequest("chatwoot", "send_message", chatID, start, err)
	if err != nil {
		return fmt.Errorf("chatwoot: send message: %w", err)
	}
	return nil
}

// ResolveMediaURL возвращает data_url вложения: Chatwoot отдаёт прямые ссылки.
func (a *Adapter) ResolveMediaURL(_ context.Context, media domain.Media) (string, error) {
	if media.URL == "" {
		return "", fmt.Errorf("chatwoot: attachment without data_url")
	}
	return media.URL, nil
}

// IsEcho отбрасывает исходящие и приватные сообщения, а также тексты, совпадающие с шаблонами бота.
func (a *Adapter) IsEcho(msg domain.InboundMessage) bool {
	if msg.Outgoing || msg.Private {
		return true
	}
	return looksLikeBotTemplate(msg.Text)
}

func looksLikeBotTemplate(text string) bool {
	if text == "" {
		return false
	}
	for _, header := range ingest.BotHeaders {
		if strings.Contains(text, header) {
			return true
		}
	}
	return false
}
