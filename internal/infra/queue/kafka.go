package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"bet-tracker-bot/internal/domain"
	"bet-tracker-bot/internal/infra/metrics"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события о ставках в топик Kafka. Ключ сообщения — user_id,
// чтобы события одного пользователя попадали в одну партицию.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher создаёт writer для брокеров через запятую.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, topic: topic}
}

// PublishBetCreated записывает событие в топик.
func (p *KafkaPublisher) PublishBetCreated(ctx context.Context, evt domain.BetCreatedEvent) error {
	evt, payload, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.UserID),
		Value: payload,
		Time:  evt.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("bet.created")},
			{Key: "event_id", Value: []byte(evt.EventID)},
		},
	})
	metrics.ObserveNetworkRequest("kafka", "write", p.topic, start, err)
	if err != nil {
		return fmt.Errorf("write bet event: %w", err)
	}
	return nil
}

// Close сбрасывает буфер writer'а.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
