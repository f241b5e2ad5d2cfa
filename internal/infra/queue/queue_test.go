package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bet-tracker-bot/internal/domain"
)

func sampleEvent() domain.BetCreatedEvent {
	return domain.BetCreatedEvent{
		BetID:           "bet-1",
		UserID:          "user-1",
		Channel:         domain.ChannelWhatsApp,
		BetType:         domain.BetSingle,
		Sport:           "Futebol",
		Odds:            1.85,
		StakeAmount:     50,
		PotentialReturn: 92.5,
		Legs:            0,
	}
}

type fakeAMQP struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (f *fakeAMQP) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeAMQP) Close() error { return nil }

func TestRabbitPublisher(t *testing.T) {
	ch := &fakeAMQP{}
	p := &RabbitPublisher{ch: ch, exchange: "bets"}

	require.NoError(t, p.PublishBetCreated(context.Background(), sampleEvent()))
	assert.Equal(t, "bets", ch.exchange)
	assert.Equal(t, "bet.created.whatsapp", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.NotEmpty(t, ch.msg.MessageId)

	var decoded domain.BetCreatedEvent
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, ch.msg.MessageId, decoded.EventID)
	assert.Equal(t, "bet-1", decoded.BetID)
	assert.False(t, decoded.CreatedAt.IsZero())

	ch.err = errors.New("channel closed")
	assert.Error(t, p.PublishBetCreated(context.Background(), sampleEvent()))
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "bet_created"}

	evt := sampleEvent()
	evt.EventID = "evt-1"
	evt.CreatedAt = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	require.NoError(t, p.PublishBetCreated(context.Background(), evt))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "user-1", string(msg.Key))
	assert.Equal(t, evt.CreatedAt, msg.Time)
	assert.JSONEq(t, `{"event_id":"evt-1","bet_id":"bet-1","user_id":"user-1","channel":"whatsapp","bet_type":"single","sport":"Futebol","odds":1.85,"stake_amount":50,"potential_return":92.5,"legs":0,"created_at":"2025-03-01T15:00:00Z"}`, string(msg.Value))
}

func TestNewKafkaPublisherSplitsBrokers(t *testing.T) {
	p := NewKafkaPublisher(" kafka-1:9092, kafka-2:9092 ,", "bet_created")
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Contains(t, w.Addr.String(), "kafka-2:9092")
	assert.Equal(t, "bet_created", w.Topic)
}

type recordingPublisher struct {
	ids []string
	err error
}

func (r *recordingPublisher) PublishBetCreated(_ context.Context, evt domain.BetCreatedEvent) error {
	r.ids = append(r.ids, evt.EventID)
	return r.err
}

func TestFanoutSharesEventID(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("broker down")}
	c := &recordingPublisher{}

	err := Fanout{a, b, c}.PublishBetCreated(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	require.Len(t, a.ids, 1)
	require.Len(t, c.ids, 1)
	assert.NotEmpty(t, a.ids[0])
	assert.Equal(t, a.ids[0], b.ids[0])
	assert.Equal(t, a.ids[0], c.ids[0])

	assert.NoError(t, Fanout(nil).PublishBetCreated(context.Background(), sampleEvent()))
}

func TestRedisEventQueue(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set, skipping redis test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := "bet_events_test_" + time.Now().Format("150405.000000")
	defer client.Del(context.Background(), key)

	q := NewRedisEventQueue(client, key)
	require.NoError(t, q.PublishBetCreated(ctx, sampleEvent()))

	evt, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bet-1", evt.BetID)
	assert.NotEmpty(t, evt.EventID)
}
