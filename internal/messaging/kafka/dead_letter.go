package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// HeaderReplayed помечает событие, повторно опубликованное из DLQ.
const HeaderReplayed = "x-dlq-replayed"

// ErrNotDeadLetter — сообщение не похоже на запись DLQ outbox-воркера.
var ErrNotDeadLetter = errors.New("message is not an outbox dead letter")

// DeadLetter — содержимое Payload конверта в DLQ: исходное событие и причина отказа.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// ParseDeadLetter разбирает сообщение из DLQ-топика.
// Для чужих сообщений возвращает ErrNotDeadLetter.
func ParseDeadLetter(value []byte) (Envelope, DeadLetter, error) {
	env, err := ParseEnvelope(value)
	if err != nil || len(env.Payload) == 0 {
		return Envelope{}, DeadLetter{}, ErrNotDeadLetter
	}

	var letter DeadLetter
	if err := json.Unmarshal(env.Payload, &letter); err != nil {
		return Envelope{}, DeadLetter{}, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(letter.Payload) == 0 {
		return Envelope{}, DeadLetter{}, fmt.Errorf("outbox dead letter %s has no original payload", env.ID)
	}
	return env, letter, nil
}

// Replay восстанавливает исходный конверт события для повторной публикации.
func (d DeadLetter) Replay(env Envelope, now time.Time) Envelope {
	return Envelope{
		ID:            firstNonEmpty(d.OutboxID, env.ID),
		AggregateType: firstNonEmpty(d.AggregateType, env.AggregateType),
		AggregateID:   firstNonEmpty(d.AggregateID, env.AggregateID),
		EventType:     firstNonEmpty(d.EventType, env.EventType),
		Payload:       d.Payload,
		PublishedAt:   now,
	}
}

// ReplayHeaders — заголовки, с которыми публикуется восстановленное событие.
func ReplayHeaders(env Envelope) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(env.EventType)},
		{Key: []byte(HeaderAggregateType), Value: []byte(env.AggregateType)},
		{Key: []byte(HeaderOutboxID), Value: []byte(env.ID)},
		{Key: []byte(HeaderReplayed), Value: []byte("true")},
	}
}

// MessageKey — ключ партиционирования события: ID заказа, иначе ID события.
func MessageKey(env Envelope) string {
	if env.AggregateID != "" {
		return env.AggregateID
	}
	return env.ID
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
