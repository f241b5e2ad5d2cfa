package cache

import (
	"context"
	"sync"
	"time"

	"bet-tracker-bot/internal/domain"
)

// MemoryDedup хранит отметки в памяти процесса. Подходит для одного экземпляра и тестов.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

var _ domain.Deduplicator = (*MemoryDedup)(nil)

// NewMemoryDedup создаёт дедупликатор в памяти.
func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &MemoryDedup{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// FirstSeen возвращает true, если ключ не встречался в пределах TTL.
func (d *MemoryDedup) FirstSeen(_ context.Context, channel domain.Channel, updateID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := dedupKey(channel, updateID)
	if expires, ok := d.seen[key]; ok && now.Before(expires) {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

// Sweep удаляет просроченные отметки и возвращает их количество.
func (d *MemoryDedup) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for key, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, key)
			removed++
		}
	}
	return removed
}
