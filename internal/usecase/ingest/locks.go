package ingest

import (
	"context"
	"sync"
)

type userSlot struct {
	ch   chan struct{}
	refs int
}

// userLocks сериализует обработку сообщений одного пользователя внутри процесса.
type userLocks struct {
	mu    sync.Mutex
	slots map[string]*userSlot
}

func newUserLocks() *userLocks {
	return &userLocks{slots: make(map[string]*userSlot)}
}

// Lock ждёт освобождения слота пользователя или отмены контекста.
func (l *userLocks) Lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[userID]
	if !ok {
		slot = &userSlot{ch: make(chan struct{}, 1)}
		l.slots[userID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			l.release(userID, slot)
		}, nil
	case <-ctx.Done():
		l.release(userID, slot)
		return nil, ctx.Err()
	}
}

func (l *userLocks) release(userID string, slot *userSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, userID)
	}
}
