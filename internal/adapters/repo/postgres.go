package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bet-tracker-bot/internal/domain"
	"bet-tracker-bot/internal/infra/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo         = (*Postgres)(nil)
	_ domain.BetRepo          = (*Postgres)(nil)
	_ domain.MessageQueueRepo = (*Postgres)(nil)
	_ domain.Deduplicator     = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate применяет схему. Скрипт идемпотентен.
func (p *Postgres) Migrate(ctx context.Context) error {
	start := time.Now()
	_, err := p.pool.Exec(ctx, schemaSQL)
	metrics.ObserveNetworkRequest("postgres", "migrate", "schema", start, err)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const userColumns = `id::text, name, phone, subscription_status, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user   domain.User
		status string
	)
	err := row.Scan(&user.ID, &user.Name, &user.Phone, &status, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	user.SubscriptionStatus = domain.SubscriptionStatus(status)
	return user, nil
}

// GetByID возвращает пользователя по id.
func (p *Postgres) GetByID(ctx context.Context, userID string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1::uuid`, userID))
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, ignoreNotFound(err))
	return user, err
}

// FindByPhones ищет пользователя по любому из вариантов номера. Раньше в списке — выше приоритет.
func (p *Postgres) FindByPhones(ctx context.Context, phones []string) (domain.User, error) {
	if len(phones) == 0 {
		return domain.User{}, domain.ErrUserNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE regexp_replace(phone, '\D', '', 'g') = ANY($1::text[])
ORDER BY array_position($1::text[], regexp_replace(phone, '\D', '', 'g')), created_at
LIMIT 1
`, phones))
	metrics.ObserveNetworkRequest("postgres", "users_find_by_phone", "users", start, ignoreNotFound(err))
	return user, err
}

// FindByLink находит владельца чата по ранее сохранённой связке.
func (p *Postgres) FindByLink(ctx context.Context, channel domain.Channel, externalUserID, externalChatID string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, `
SELECT u.id::text, u.name, u.phone, u.subscription_status, u.created_at
FROM user_channel_links l
JOIN users u ON u.id = l.user_id
WHERE l.channel = $1
  AND (l.external_chat_id = $3 OR ($2 <> '' AND l.external_user_id = $2))
ORDER BY (l.external_chat_id = $3) DESC
LIMIT 1
`, string(channel), externalUserID, externalChatID))
	metrics.ObserveNetworkRequest("postgres", "links_find", "user_channel_links", start, ignoreNotFound(err))
	return user, err
}

// UpsertLink сохраняет связку аккаунта с чатом. Чат, привязанный к другому аккаунту, переходит к новому.
func (p *Postgres) UpsertLink(ctx context.Context, link domain.ChannelLink) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "user_channel_links", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	_, err = tx.Exec(ctx, `
DELETE FROM user_channel_links
WHERE channel=$1 AND external_chat_id=$2 AND user_id <> $3::uuid
`, string(link.Channel), link.ExternalChatID, link.UserID)
	metrics.ObserveNetworkRequest("postgres", "links_release_chat", "user_channel_links", start, err)
	if err != nil {
		return err
	}

	var syncedAt any
	if !link.SyncedAt.IsZero() {
		syncedAt = link.SyncedAt
	}
	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO user_channel_links (user_id, channel, external_user_id, external_chat_id, external_username, phone, synced, synced_at, sync_source, updated_at)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (user_id, channel) DO UPDATE SET
    external_user_id = EXCLUDED.external_user_id,
    external_chat_id = EXCLUDED.external_chat_id,
    external_username = EXCLUDED.external_username,
    phone = EXCLUDED.phone,
    synced = EXCLUDED.synced,
    synced_at = EXCLUDED.synced_at,
    sync_source = EXCLUDED.sync_source,
    updated_at = now()
`, link.UserID, string(link.Channel), link.ExternalUserID, link.ExternalChatID, link.ExternalUsername, link.Phone, link.Synced, syncedAt, link.SyncSource)
	metrics.ObserveNetworkRequest("postgres", "links_upsert", "user_channel_links", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "user_channel_links", start, err)
	return err
}

// CountBetsBetween считает ставки пользователя с bet_date в [from, to).
func (p *Postgres) CountBetsBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM bets WHERE user_id=$1::uuid AND bet_date >= $2 AND bet_date < $3
`, userID, from, to).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "bets_count", "bets", start, err)
	return count, err
}

// CreateBet сохраняет ставку и её ноги в одной транзакции. При quota.Limit > 0 строка пользователя
// блокируется и лимит перепроверяется до вставки, иначе возвращается domain.ErrDailyLimitReached.
func (p *Postgres) CreateBet(ctx context.Context, nb domain.NewBet, quota domain.QuotaWindow) (domain.Bet, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "bets", start, err)
	if err != nil {
		return domain.Bet{}, err
	}
	defer tx.Rollback(ctx)

	bet := nb.Bet
	if quota.Limit > 0 {
		start = time.Now()
		_, err = tx.Exec(ctx, `SELECT 1 FROM users WHERE id=$1::uuid FOR UPDATE`, bet.UserID)
		metrics.ObserveNetworkRequest("postgres", "users_lock", "users", start, err)
		if err != nil {
			return domain.Bet{}, err
		}

		var count int
		start = time.Now()
		err = tx.QueryRow(ctx, `
SELECT COUNT(*) FROM bets WHERE user_id=$1::uuid AND bet_date >= $2 AND bet_date < $3
`, bet.UserID, quota.From, quota.To).Scan(&count)
		metrics.ObserveNetworkRequest("postgres", "bets_count_locked", "bets", start, err)
		if err != nil {
			return domain.Bet{}, err
		}
		if count >= quota.Limit {
			return domain.Bet{}, domain.ErrDailyLimitReached
		}
	}

	if bet.Status == "" {
		bet.Status = domain.BetPending
	}
	if bet.BetDate.IsZero() {
		bet.BetDate = time.Now().UTC()
	}
	var processed any
	if len(bet.ProcessedData) > 0 {
		processed = []byte(bet.ProcessedData)
	}

	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO bets (user_id, bet_type, sport, league, match_description, bet_description, odds, stake_amount, potential_return, bet_date, match_date, raw_input, processed_data, channel, status)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING id::text, created_at
`, bet.UserID, string(bet.BetType), bet.Sport, bet.League, bet.MatchDescription, bet.BetDescription,
		bet.Odds, bet.StakeAmount, bet.PotentialReturn, bet.BetDate, bet.MatchDate, bet.RawInput, processed,
		string(bet.Channel), string(bet.Status)).Scan(&bet.ID, &bet.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "bets_insert", "bets", start, err)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("insert bet: %w", err)
	}

	for _, leg := range nb.Legs {
		status := leg.Status
		if status == "" {
			status = domain.BetPending
		}
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO bet_legs (bet_id, leg_number, sport, match_description, bet_description, odds, status)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
`, bet.ID, leg.LegNumber, leg.Sport, leg.MatchDescription, leg.BetDescription, leg.Odds, string(status))
		metrics.ObserveNetworkRequest("postgres", "bet_legs_insert", "bet_legs", start, err)
		if err != nil {
			return domain.Bet{}, fmt.Errorf("insert bet leg %d: %w", leg.LegNumber, err)
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "bets", start, err)
	if err != nil {
		return domain.Bet{}, err
	}
	return bet, nil
}

// ListBetLegs возвращает ноги ставки по порядку.
// В конвейере не используется: чтение для проверок записи экспресса и ручного разбора.
func (p *Postgres) ListBetLegs(ctx context.Context, betID string) ([]domain.BetLeg, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id::text, bet_id::text, leg_number, sport, match_description, bet_description, odds, status
FROM bet_legs WHERE bet_id=$1::uuid ORDER BY leg_number
`, betID)
	metrics.ObserveNetworkRequest("postgres", "bet_legs_list", "bet_legs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var legs []domain.BetLeg
	for rows.Next() {
		var (
			leg    domain.BetLeg
			status string
		)
		if err := rows.Scan(&leg.ID, &leg.BetID, &leg.LegNumber, &leg.Sport, &leg.MatchDescription, &leg.BetDescription, &leg.Odds, &status); err != nil {
			return nil, err
		}
		leg.Status = domain.BetStatus(status)
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

// EnqueueMessage добавляет запись в журнал сообщений.
func (p *Postgres) EnqueueMessage(ctx context.Context, msg domain.QueuedMessage) (domain.QueuedMessage, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if msg.Status == "" {
		msg.Status = domain.QueuePending
	}
	var userID, mediaURL any
	if msg.UserID != "" {
		userID = msg.UserID
	}
	if msg.MediaURL != "" {
		mediaURL = msg.MediaURL
	}

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO message_queue (user_id, message_type, content, media_url, status, channel)
VALUES ($1::uuid, $2, $3, $4, $5, $6)
RETURNING id::text, created_at, updated_at
`, userID, string(msg.Kind), msg.Content, mediaURL, string(msg.Status), string(msg.Channel)).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "message_queue_insert", "message_queue", start, err)
	if err != nil {
		return domain.QueuedMessage{}, fmt.Errorf("insert message_queue: %w", err)
	}
	return msg, nil
}

// UpdateMessageStatus переводит запись журнала в новый статус.
func (p *Postgres) UpdateMessageStatus(ctx context.Context, id string, status domain.QueueStatus, errMsg string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var errValue any
	if errMsg != "" {
		errValue = errMsg
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE message_queue SET status=$2, error_message=$3, updated_at=now() WHERE id=$1::uuid
`, id, string(status), errValue)
	metrics.ObserveNetworkRequest("postgres", "message_queue_update", "message_queue", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message_queue %s not found", id)
	}
	return nil
}

// GetQueuedMessage возвращает запись журнала.
// В конвейере не используется: чтение для проверок статусов очереди и ручного разбора.
func (p *Postgres) GetQueuedMessage(ctx context.Context, id string) (domain.QueuedMessage, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		msg                      domain.QueuedMessage
		userID, mediaURL, errMsg *string
		kind, status, channel    string
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id::text, user_id::text, message_type, content, media_url, status, error_message, channel, created_at, updated_at
FROM message_queue WHERE id=$1::uuid
`, id).Scan(&msg.ID, &userID, &kind, &msg.Content, &mediaURL, &status, &errMsg, &channel, &msg.CreatedAt, &msg.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "message_queue_get", "message_queue", start, err)
	if err != nil {
		return domain.QueuedMessage{}, err
	}
	msg.Kind = domain.MessageKind(kind)
	msg.Status = domain.QueueStatus(status)
	msg.Channel = domain.Channel(channel)
	if userID != nil {
		msg.UserID = *userID
	}
	if mediaURL != nil {
		msg.MediaURL = *mediaURL
	}
	if errMsg != nil {
		msg.ErrorMessage = *errMsg
	}
	return msg, nil
}

// FirstSeen фиксирует апдейт в processed_updates. false — апдейт уже обрабатывался.
func (p *Postgres) FirstSeen(ctx context.Context, channel domain.Channel, updateID string) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO processed_updates (channel, update_id) VALUES ($1, $2)
ON CONFLICT (channel, update_id) DO NOTHING
`, string(channel), updateID)
	metrics.ObserveNetworkRequest("postgres", "processed_updates_insert", "processed_updates", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeProcessedUpdates удаляет отметки старше before.
func (p *Postgres) PurgeProcessedUpdates(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM processed_updates WHERE seen_at < $1`, before)
	metrics.ObserveNetworkRequest("postgres", "processed_updates_purge", "processed_updates", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil
	}
	return err
}
