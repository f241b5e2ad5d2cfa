package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bet-tracker-bot/internal/domain"
)

// encodeEvent проставляет event_id и время, если их нет, и сериализует событие.
func encodeEvent(evt domain.BetCreatedEvent) (domain.BetCreatedEvent, []byte, error) {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return evt, nil, fmt.Errorf("marshal event: %w", err)
	}
	return evt, payload, nil
}

// Fanout рассылает событие во все настроенные брокеры.
type Fanout []domain.BetEventPublisher

var _ domain.BetEventPublisher = Fanout(nil)

// PublishBetCreated публикует событие везде и объединяет ошибки.
func (f Fanout) PublishBetCreated(ctx context.Context, evt domain.BetCreatedEvent) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	var errs []error
	for _, p := range f {
		if err := p.PublishBetCreated(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
