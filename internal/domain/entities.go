package domain

import (
	"encoding/json"
	"time"
)

// Channel обозначает мессенджер, через который пришла ставка.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
)

// SubscriptionStatus описывает тариф пользователя.
type SubscriptionStatus string

const (
	SubscriptionFree    SubscriptionStatus = "free"
	SubscriptionPremium SubscriptionStatus = "premium"
)

// User описывает аккаунт дашборда.
type User struct {
	ID                 string
	Name               string
	Phone              string
	SubscriptionStatus SubscriptionStatus
	CreatedAt          time.Time
}

// IsPremium сообщает, снят ли с пользователя дневной лимит.
func (u User) IsPremium() bool {
	return u.SubscriptionStatus == SubscriptionPremium
}

// ChannelLink связывает аккаунт с идентификаторами мессенджера.
type ChannelLink struct {
	UserID           string
	Channel          Channel
	ExternalUserID   string
	ExternalChatID   string
	ExternalUsername string
	Phone            string
	Synced           bool
	SyncedAt         time.Time
	SyncSource       string
}

// MediaKind тип вложения во входящем сообщении.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// Media ссылка на вложение. FileRef заполняется, когда провайдер отдаёт временный идентификатор файла,
// URL — когда ссылка уже прямая.
type Media struct {
	Kind     MediaKind
	FileRef  string
	URL      string
	MimeType string
}

// SharedContact — контакт, которым пользователь поделился с ботом.
type SharedContact struct {
	Phone          string
	ExternalUserID string
}

// InboundMessage — нормализованное входящее сообщение любого канала.
type InboundMessage struct {
	Channel          Channel
	UpdateID         string
	ChatID           string
	ExternalUserID   string
	ExternalUsername string
	// VerifiedPhone заполняется, только если провайдер сам гарантирует номер отправителя.
	VerifiedPhone string
	Text          string
	Command       string
	Media         *Media
	Contact       *SharedContact
	Outgoing      bool
	Private       bool
	ReceivedAt    time.Time
}

// MessageKind тип сообщения в очереди.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageAudio MessageKind = "audio"
)

// QueueStatus статус обработки сообщения.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// QueuedMessage — запись аудита о сообщении, ожидающем классификации.
type QueuedMessage struct {
	ID           string
	UserID       string
	Kind         MessageKind
	Content      string
	MediaURL     string
	Status       QueueStatus
	ErrorMessage string
	Channel      Channel
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BetType тип ставки.
type BetType string

const (
	BetSingle   BetType = "single"
	BetMultiple BetType = "multiple"
	BetSystem   BetType = "system"
)

// BetStatus статус расчёта ставки или ноги.
type BetStatus string

const (
	BetPending  BetStatus = "pending"
	BetWon      BetStatus = "won"
	BetLost     BetStatus = "lost"
	BetCashout  BetStatus = "cashout"
	BetHalfWon  BetStatus = "half_won"
	BetHalfLost BetStatus = "half_lost"
)

// MatchLeg — одна позиция кандидата в ставку.
type MatchLeg struct {
	Description    string   `json:"description" validate:"required"`
	BetDescription string   `json:"bet_description" validate:"required"`
	Odds           float64  `json:"odds" validate:"gte=0"`
	MatchDate      *string  `json:"match_date"`
	IsCombinedOdd  bool     `json:"is_combined_odd"`
	OriginalOdd    *float64 `json:"original_odd,omitempty"`
}

// CandidateBet — результат извлечения ставки до сохранения.
type CandidateBet struct {
	BetType           BetType    `json:"bet_type" validate:"required,oneof=single multiple system"`
	Sport             string     `json:"sport" validate:"required"`
	League            *string    `json:"league"`
	Matches           []MatchLeg `json:"matches" validate:"required,min=1,dive"`
	StakeAmount       float64    `json:"stake_amount" validate:"gte=0"`
	BetDate           string     `json:"bet_date"`
	OddsAreIndividual bool       `json:"odds_are_individual"`
}

// Bet — сохранённая ставка пользователя.
type Bet struct {
	ID               string
	UserID           string
	BetType          BetType
	Sport            string
	League           *string
	MatchDescription string
	BetDescription   string
	Odds             float64
	StakeAmount      float64
	PotentialReturn  float64
	BetDate          time.Time
	MatchDate        *time.Time
	RawInput         string
	ProcessedData    json.RawMessage
	Channel          Channel
	Status           BetStatus
	CreatedAt        time.Time
}

// BetLeg — отдельная нога множественной ставки.
type BetLeg struct {
	ID               string
	BetID            string
	LegNumber        int
	Sport            string
	MatchDescription string
	BetDescription   string
	Odds             float64
	Status           BetStatus
}
