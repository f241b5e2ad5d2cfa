package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bet-tracker-bot/internal/domain"
)

type memoryStore struct {
	mu     sync.Mutex
	users  map[string]domain.User
	phones map[string]string
	links  map[string]domain.ChannelLink
	bets   []domain.Bet
	legs   []domain.BetLeg
	queue  map[string]*domain.QueuedMessage
	order  []string
	seq    int

	createErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:  map[string]domain.User{},
		phones: map[string]string{},
		links:  map[string]domain.ChannelLink{},
		queue:  map[string]*domain.QueuedMessage{},
	}
}

func linkKey(channel domain.Channel, chatID string) string {
	return string(channel) + ":" + chatID
}

func (m *memoryStore) addUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	if u.Phone != "" {
		m.phones[u.Phone] = u.ID
	}
}

func (m *memoryStore) addLink(l domain.ChannelLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[linkKey(l.Channel, l.ExternalChatID)] = l
}

func (m *memoryStore) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryStore) FindByPhones(_ context.Context, phones []string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range phones {
		if id, ok := m.phones[p]; ok {
			return m.users[id], nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *memoryStore) FindByLink(_ context.Context, channel domain.Channel, _, chatID string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[linkKey(channel, chatID)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return m.users[l.UserID], nil
}

func (m *memoryStore) UpsertLink(_ context.Context, l domain.ChannelLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[linkKey(l.Channel, l.ExternalChatID)] = l
	return nil
}

func (m *memoryStore) CountBetsBetween(_ context.Context, userID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(userID, from, to), nil
}

func (m *memoryStore) countLocked(userID string, from, to time.Time) int {
	n := 0
	for _, b := range m.bets {
		if b.UserID == userID && !b.BetDate.Before(from) && b.BetDate.Before(to) {
			n++
		}
	}
	return n
}

func (m *memoryStore) CreateBet(_ context.Context, nb domain.NewBet, quota domain.QuotaWindow) (domain.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return domain.Bet{}, m.createErr
	}
	if quota.Limit > 0 && m.countLocked(nb.Bet.UserID, quota.From, quota.To) >= quota.Limit {
		return domain.Bet{}, domain.ErrDailyLimitReached
	}
	m.seq++
	bet := nb.Bet
	bet.ID = fmt.Sprintf("bet-%d", m.seq)
	bet.CreatedAt = time.Now()
	m.bets = append(m.bets, bet)
	for _, leg := range nb.Legs {
		leg.BetID = bet.ID
		m.legs = append(m.legs, leg)
	}
	return bet, nil
}

func (m *memoryStore) EnqueueMessage(_ context.Context, msg domain.QueuedMessage) (domain.QueuedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	msg.ID = fmt.Sprintf("q-%d", m.seq)
	m.queue[msg.ID] = &msg
	m.order = append(m.order, msg.ID)
	return msg, nil
}

func (m *memoryStore) UpdateMessageStatus(_ context.Context, id string, status domain.QueueStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queue[id]
	if !ok {
		return fmt.Errorf("queue message %s not found", id)
	}
	q.Status = status
	q.ErrorMessage = errMsg
	return nil
}

func (m *memoryStore) queued() []domain.QueuedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.QueuedMessage, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.queue[id])
	}
	return out
}

type sentMessage struct {
	chatID string
	reply  Reply
}

type fakeAdapter struct {
	mu       sync.Mutex
	channel  domain.Channel
	sent     []sentMessage
	echo     bool
	fileBase string
}

func (f *fakeAdapter) Channel() domain.Channel { return f.channel }

func (f *fakeAdapter) Send(_ context.Context, chatID string, reply Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, reply: reply})
	return nil
}

func (f *fakeAdapter) ResolveMediaURL(_ context.Context, media domain.Media) (string, error) {
	base := f.fileBase
	if base == "" {
		base = "https://files.example/"
	}
	return base + media.FileRef, nil
}

func (f *fakeAdapter) IsEcho(domain.InboundMessage) bool { return f.echo }

func (f *fakeAdapter) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type recordingTelemetry struct {
	mu     sync.Mutex
	events []string
	props  []map[string]any
}

func (r *recordingTelemetry) Track(_ context.Context, event string, props map[string]any, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.props = append(r.props, props)
}

func (r *recordingTelemetry) Identify(context.Context, string, map[string]any) {}

func (r *recordingTelemetry) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

// propsOf возвращает свойства всех событий с заданным именем.
func (r *recordingTelemetry) propsOf(event string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	for i, e := range r.events {
		if e == event {
			out = append(out, r.props[i])
		}
	}
	return out
}

type funcExtractor func(ctx context.Context, text string, meta domain.ExtractMeta) (*domain.CandidateBet, error)

func (f funcExtractor) Extract(ctx context.Context, text string, meta domain.ExtractMeta) (*domain.CandidateBet, error) {
	return f(ctx, text, meta)
}

type fakeMedia struct {
	transcript  string
	description string
	err         error
}

func (f fakeMedia) Transcribe(context.Context, string, domain.ExtractMeta) (string, error) {
	return f.transcript, f.err
}

func (f fakeMedia) DescribeBetSlip(context.Context, string, domain.ExtractMeta) (string, error) {
	return f.description, f.err
}

type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memoryDedup) FirstSeen(_ context.Context, channel domain.Channel, updateID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	key := string(channel) + ":" + updateID
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.BetCreatedEvent
}

func (c *capturePublisher) PublishBetCreated(_ context.Context, evt domain.BetCreatedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}
