// Package webhook принимает вебхуки мессенджеров и передаёт сообщения оркестратору.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"bet-tracker-bot/internal/adapters/telegram"
	"bet-tracker-bot/internal/adapters/whatsapp"
	"bet-tracker-bot/internal/domain"
	httpinfra "bet-tracker-bot/internal/infra/http"
	"bet-tracker-bot/internal/usecase/ingest"
)

const (
	maxBodyBytes = 1 << 20

	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	whatsappSecretHeader = "X-Webhook-Secret"
	whatsappSecretQuery  = "token"
)

type processor interface {
	Handle(ctx context.Context, adapter ingest.ChannelAdapter, msg domain.InboundMessage) ingest.Outcome
}

// Config — параметры вебхуков. Nil-адаптер означает, что канал не настроен.
type Config struct {
	Telegram       ingest.ChannelAdapter
	TelegramSecret string
	WhatsApp       ingest.ChannelAdapter
	WhatsAppSecret string
	// ProcessTimeout ограничивает обработку одного сообщения после отключения провайдера.
	ProcessTimeout time.Duration
}

// Handler обслуживает POST /webhooks/{channel}.
type Handler struct {
	svc processor
	cfg Config
	log zerolog.Logger
}

// NewHandler создаёт обработчик вебхуков.
func NewHandler(svc processor, cfg Config, logger zerolog.Logger) *Handler {
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 50 * time.Second
	}
	return &Handler{svc: svc, cfg: cfg, log: logger}
}

// Routes регистрирует маршруты.
func (h *Handler) Routes(r chi.Router) {
	r.With(httpinfra.SharedSecretMiddleware(h.cfg.TelegramSecret, telegramSecretHeader, "")).
		Post("/webhooks/telegram", h.telegram)
	r.With(httpinfra.SharedSecretMiddleware(h.cfg.WhatsAppSecret, whatsappSecretHeader, whatsappSecretQuery)).
		Post("/webhooks/whatsapp", h.whatsapp)
}

func (h *Handler) telegram(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Telegram == nil {
		httpinfra.WriteJSON(w, http.StatusInternalServerError, httpinfra.Response{Error: "telegram bot token is not configured"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httpinfra.WriteJSON(w, http.StatusBadRequest, httpinfra.Response{Error: "cannot read body"})
		return
	}
	var upd tgbotapi.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		// 200, иначе Telegram будет бесконечно повторять доставку
		h.log.Warn().Err(err).Msg("webhook: некорректный апдейт telegram")
		httpinfra.WriteJSON(w, http.StatusOK, httpinfra.Response{Error: "invalid update payload"})
		return
	}
	msg, ok := telegram.ParseUpdate(upd)
	if !ok {
		httpinfra.WriteJSON(w, http.StatusOK, httpinfra.Response{Success: true, Message: "ignored", Outcome: string(ingest.OutcomeIgnored)})
		return
	}
	h.dispatch(w, r, h.cfg.Telegram, msg)
}

func (h *Handler) whatsapp(w http.ResponseWriter, r *http.Request) {
	if h.cfg.WhatsApp == nil {
		httpinfra.WriteJSON(w, http.StatusInternalServerError, httpinfra.Response{Error: "whatsapp channel is not configured"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httpinfra.WriteJSON(w, http.StatusBadRequest, httpinfra.Response{Error: "cannot read body"})
		return
	}
	msg, ok, err := whatsapp.ParseWebhook(body)
	if err != nil {
		h.log.Warn().Err(err).Msg("webhook: некорректный вебхук chatwoot")
		httpinfra.WriteJSON(w, http.StatusBadRequest, httpinfra.Response{Error: "invalid webhook payload"})
		return
	}
	if !ok {
		httpinfra.WriteJSON(w, http.StatusOK, httpinfra.Response{Success: true, Message: "ignored", Outcome: string(ingest.OutcomeIgnored)})
		return
	}
	h.dispatch(w, r, h.cfg.WhatsApp, msg)
}

// dispatch обрабатывает сообщение синхронно. Отключение провайдера не прерывает уже начатую запись ставки.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, adapter ingest.ChannelAdapter, msg domain.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.cfg.ProcessTimeout)
	defer cancel()

	outcome := h.svc.Handle(ctx, adapter, msg)
	resp := httpinfra.Response{Success: outcome != ingest.OutcomeError, Outcome: string(outcome)}
	if resp.Success {
		resp.Message = "processed"
	} else {
		resp.Error = "processing failed"
	}
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}
