package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound возвращается, когда аккаунт не найден ни по связке, ни по телефону.
	ErrUserNotFound = errors.New("user not found")
	// ErrDailyLimitReached возвращается, когда бесплатный лимит ставок на сегодня исчерпан.
	ErrDailyLimitReached = errors.New("daily bet limit reached")
)

// UserRepo управляет аккаунтами и их связками с мессенджерами.
type UserRepo interface {
	GetByID(ctx context.Context, userID string) (User, error)
	FindByPhones(ctx context.Context, phones []string) (User, error)
	FindByLink(ctx context.Context, channel Channel, externalUserID, externalChatID string) (User, error)
	UpsertLink(ctx context.Context, link ChannelLink) error
}

// NewBet содержит всё, что нужно сохранить атомарно.
type NewBet struct {
	Bet  Bet
	Legs []BetLeg
}

// QuotaWindow описывает лимит, проверяемый в транзакции вставки. Limit <= 0 отключает проверку.
type QuotaWindow struct {
	Limit int
	From  time.Time
	To    time.Time
}

// BetRepo сохраняет ставки и считает их для лимита.
type BetRepo interface {
	CountBetsBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
	CreateBet(ctx context.Context, nb NewBet, quota QuotaWindow) (Bet, error)
}

// MessageQueueRepo ведёт журнал входящих сообщений.
type MessageQueueRepo interface {
	EnqueueMessage(ctx context.Context, msg QueuedMessage) (QueuedMessage, error)
	UpdateMessageStatus(ctx context.Context, id string, status QueueStatus, errMsg string) error
}

// Deduplicator отвечает за обработку апдейта не более одного раза.
type Deduplicator interface {
	// FirstSeen возвращает true, если апдейт встретился впервые.
	FirstSeen(ctx context.Context, channel Channel, updateID string) (bool, error)
}

// ExtractMeta — контекст вызова извлечения для телеметрии.
type ExtractMeta struct {
	UserID  string
	TraceID string
	Channel Channel
	Source  MessageKind
}

// BetExtractor превращает свободный текст в кандидата в ставку. nil без ошибки означает «не ставка».
type BetExtractor interface {
	Extract(ctx context.Context, text string, meta ExtractMeta) (*CandidateBet, error)
}

// MediaAdapter преобразует голосовые и скриншоты купонов в текст.
type MediaAdapter interface {
	Transcribe(ctx context.Context, audioURL string, meta ExtractMeta) (string, error)
	DescribeBetSlip(ctx context.Context, imageURL string, meta ExtractMeta) (string, error)
}

// Telemetry отправляет аналитические события. Реализации не возвращают ошибок и не блокируют вызывающего.
type Telemetry interface {
	Track(ctx context.Context, event string, props map[string]any, distinctID, traceID string)
	Identify(ctx context.Context, userID string, props map[string]any)
}

// BetEventPublisher публикует событие о созданной ставке для внешних потребителей.
type BetEventPublisher interface {
	PublishBetCreated(ctx context.Context, evt BetCreatedEvent) error
}

// BetCreatedEvent — payload события о новой ставке.
type BetCreatedEvent struct {
	EventID         string    `json:"event_id"`
	BetID           string    `json:"bet_id"`
	UserID          string    `json:"user_id"`
	Channel         Channel   `json:"channel"`
	BetType         BetType   `json:"bet_type"`
	Sport           string    `json:"sport"`
	Odds            float64   `json:"odds"`
	StakeAmount     float64   `json:"stake_amount"`
	PotentialReturn float64   `json:"potential_return"`
	Legs            int       `json:"legs"`
	CreatedAt       time.Time `json:"created_at"`
}
