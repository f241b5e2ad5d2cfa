package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bet-tracker-bot/internal/domain"
	applog "bet-tracker-bot/internal/infra/log"
	"bet-tracker-bot/internal/infra/metrics"
	"bet-tracker-bot/internal/usecase/ingest"
)

const contactButtonText = "📱 Compartilhar meu contato"

type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Adapter реализует ingest.ChannelAdapter для Telegram Bot API.
type Adapter struct {
	bot     botClient
	limiter *rate.Limiter
	log     zerolog.Logger
}

var _ ingest.ChannelAdapter = (*Adapter)(nil)

// NewAdapter создаёт адаптер. sendRPS ограничивает исходящие сообщения, 0 отключает лимит.
func NewAdapter(bot botClient, sendRPS float64, logger zerolog.Logger) *Adapter {
	limit := rate.Inf
	if sendRPS > 0 {
		limit = rate.Limit(sendRPS)
	}
	return &Adapter{bot: bot, limiter: rate.NewLimiter(limit, 1), log: logger}
}

// Channel возвращает domain.ChannelTelegram.
func (a *Adapter) Channel() domain.Channel {
	return domain.ChannelTelegram
}

// Send отправляет ответ в Markdown, разбивая длинный текст на части.
func (a *Adapter) Send(ctx context.Context, chatID string, reply ingest.Reply) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	for i, part := range SplitMessage(reply.Text, messageLimit) {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram: rate limiter: %w", err)
		}
		msg := tgbotapi.NewMessage(id, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if i == 0 && reply.RequestContact {
			keyboard := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(contactButtonText)))
			keyboard.OneTimeKeyboard = true
			keyboard.ResizeKeyboard = true
			msg.ReplyMarkup = keyboard
		}
		if err := a.send(msg, chatID); err != nil {
			if !isParseError(err) {
				return err
			}
			// пользовательский текст сломал разметку: отправляем как есть
			a.log.Warn().Err(err).Str("chat_id", chatID).Msg("telegram: markdown отклонён, отправляем без разметки")
			msg.ParseMode = ""
			if err := a.send(msg, chatID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Adapter) send(msg tgbotapi.MessageConfig, chatID string) error {
	start := time.Now()
	_, err := a.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", chatID, start, err)
	if err != nil {
		return applog.RedactError(fmt.Errorf("telegram: send message: %w", err))
	}
	return nil
}

func isParseError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}

// ResolveMediaURL превращает file_id в ссылку на api.telegram.org.
func (a *Adapter) ResolveMediaURL(_ context.Context, media domain.Media) (string, error) {
	if media.URL != "" {
		return media.URL, nil
	}
	if media.FileRef == "" {
		return "", fmt.Errorf("telegram: media without file id")
	}
	start := time.Now()
	url, err := a.bot.GetFileDirectURL(media.FileRef)
	metrics.ObserveNetworkRequest("telegram_bot", "get_file", string(media.Kind), start, err)
	if err != nil {
		return "", applog.RedactError(fmt.Errorf("telegram: get file: %w", err))
	}
	return url, nil
}

// IsEcho отбрасывает сообщения других ботов и самого бота.
func (a *Adapter) IsEcho(msg domain.InboundMessage) bool {
	return msg.Outgoing
}

// ParseUpdate переводит апдейт Bot API во входящее сообщение. false — апдейт без сообщения.
func ParseUpdate(upd tgbotapi.Update) (domain.InboundMessage, bool) {
	m := upd.Message
	if m == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}
	msg := domain.InboundMessage{
		Channel:    domain.ChannelTelegram,
		UpdateID:   strconv.Itoa(upd.UpdateID),
		ChatID:     strconv.FormatInt(m.Chat.ID, 10),
		Text:       strings.TrimSpace(m.Text),
		ReceivedAt: m.Time(),
	}
	if m.From != nil {
		msg.ExternalUserID = strconv.FormatInt(m.From.ID, 10)
		msg.ExternalUsername = m.From.UserName
		msg.Outgoing = m.From.IsBot
	}
	if m.IsCommand() {
		msg.Command = strings.ToLower(m.Command())
	}
	if msg.Text == "" {
		msg.Text = strings.TrimSpace(m.Caption)
	}
	if m.Contact != nil {
		contact := &domain.SharedContact{Phone: m.Contact.PhoneNumber}
		if m.Contact.UserID != 0 {
			contact.ExternalUserID = strconv.FormatInt(m.Contact.UserID, 10)
		}
		msg.Contact = contact
	}

	switch {
	case len(m.Photo) > 0:
		// последний размер самый большой
		largest := m.Photo[len(m.Photo)-1]
		msg.Media = &domain.Media{Kind: domain.MediaImage, FileRef: largest.FileID, MimeType: "image/jpeg"}
	case m.Voice != nil:
		msg.Media = &domain.Media{Kind: domain.MediaAudio, FileRef: m.Voice.FileID, MimeType: m.Voice.MimeType}
	case m.Audio != nil:
		msg.Media = &domain.Media{Kind: domain.MediaAudio, FileRef: m.Audio.FileID, MimeType: m.Audio.MimeType}
	case m.Document != nil:
		kind := domain.MediaDocument
		mime := strings.ToLower(m.Document.MimeType)
		switch {
		case strings.HasPrefix(mime, "image/"):
			kind = domain.MediaImage
		case strings.HasPrefix(mime, "audio/"):
			kind = domain.MediaAudio
		}
		msg.Media = &domain.Media{Kind: kind, FileRef: m.Document.FileID, MimeType: m.Document.MimeType}
	}
	return msg, true
}
