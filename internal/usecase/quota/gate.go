// Package quota ограничивает число ставок бесплатного пользователя за сутки.
package quota

import (
	"context"
	"fmt"
	"time"

	"bet-tracker-bot/internal/domain"
)

type userGetter interface {
	GetByID(ctx context.Context, userID string) (domain.User, error)
}

type betCounter interface {
	CountBetsBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// Gate проверяет дневной лимит.
type Gate struct {
	users userGetter
	bets  betCounter
	limit int
	now   func() time.Time
}

// NewGate создаёт гейт с лимитом domain.DailyBetLimit.
func NewGate(users userGetter, bets betCounter) *Gate {
	return &Gate{users: users, bets: bets, limit: domain.DailyBetLimit, now: time.Now}
}

// Window возвращает окно лимита для пользователя. Для премиума Limit равен 0.
func (g *Gate) Window(user domain.User) domain.QuotaWindow {
	from, to := domain.DayBounds(g.now())
	limit := g.limit
	if user.IsPremium() {
		limit = 0
	}
	return domain.QuotaWindow{Limit: limit, From: from, To: to}
}

// HasReachedLimit сообщает, исчерпал ли пользователь лимит на сегодня (сутки по UTC−3).
func (g *Gate) HasReachedLimit(ctx context.Context, userID string) (bool, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("quota: load user: %w", err)
	}
	window := g.Window(user)
	if window.Limit <= 0 {
		return false, nil
	}
	count, err := g.bets.CountBetsBetween(ctx, userID, window.From, window.To)
	if err != nil {
		return false, fmt.Errorf("quota: count bets: %w", err)
	}
	return count >= window.Limit, nil
}
