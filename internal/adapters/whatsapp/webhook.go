package whatsapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bet-tracker-bot/internal/domain"
)

const eventMessageCreated = "message_created"

// WebhookPayload — нужная часть вебхука Chatwoot.
type WebhookPayload struct {
	Event       string          `json:"event"`
	ID          json.Number     `json:"id"`
	Content     string          `json:"content"`
	MessageType json.RawMessage `json:"message_type"`
	Private     bool            `json:"private"`
	CreatedAt   json.RawMessage `json:"created_at"`
	Sender      struct {
		ID          json.Number `json:"id"`
		Name        string      `json:"name"`
		PhoneNumber string      `json:"phone_number"`
		Type        string      `json:"type"`
	} `json:"sender"`
	Conversation struct {
		ID json.Number `json:"id"`
	} `json:"conversation"`
	Attachments []struct {
		FileType string `json:"file_type"`
		DataURL  string `json:"data_url"`
	} `json:"attachments"`
}

// ParseWebhook разбирает вебхук. false — событие не является новым сообщением.
func ParseWebhook(body []byte) (domain.InboundMessage, bool, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.InboundMessage{}, false, fmt.Errorf("chatwoot: decode webhook: %w", err)
	}
	if p.Event != eventMessageCreated {
		return domain.InboundMessage{}, false, nil
	}
	msg := domain.InboundMessage{
		Channel:          domain.ChannelWhatsApp,
		UpdateID:         p.ID.String(),
		ChatID:           p.Conversation.ID.String(),
		ExternalUserID:   p.Sender.ID.String(),
		ExternalUsername: p.Sender.Name,
		Text:             strings.TrimSpace(p.Content),
		Private:          p.Private,
		Outgoing:         !isIncoming(p.MessageType) || isAgent(p.Sender.Type),
		ReceivedAt:       parseCreatedAt(p.CreatedAt),
	}
	// номер отправителя в WhatsApp-инбоксе подтверждён провайдером
	if !msg.Outgoing && p.Sender.PhoneNumber != "" {
		msg.VerifiedPhone = p.Sender.PhoneNumber
	}
	for _, att := range p.Attachments {
		kind, ok := attachmentKind(att.FileType)
		if !ok || att.DataURL == "" {
			continue
		}
		msg.Media = &domain.Media{Kind: kind, URL: att.DataURL}
		break
	}
	return msg, true, nil
}

// message_type приходит строкой ("incoming") или числом (0).
func isIncoming(raw json.RawMessage) bool {
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	return value == "incoming" || value == "0"
}

func isAgent(senderType string) bool {
	switch strings.ToLower(senderType) {
	case "user", "agent_bot", "agentbot":
		return true
	}
	return false
}

func attachmentKind(fileType string) (domain.MediaKind, bool) {
	switch strings.ToLower(fileType) {
	case "image":
		return domain.MediaImage, true
	case "audio":
		return domain.MediaAudio, true
	case "file":
		return domain.MediaDocument, true
	}
	return "", false
}

func parseCreatedAt(raw json.RawMessage) time.Time {
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if value == "" || value == "null" {
		return time.Now().UTC()
	}
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
