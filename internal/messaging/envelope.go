// Package messaging содержит общий формат событий, публикуемых из outbox во внешние брокеры.
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Envelope: сообщение, которое видят потребители событий заказов.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение. Невалидный JSON в payload отбрасывается.
func NewEnvelope(event domain.OutboxMessage, publishedAt time.Time) Envelope {
	env := Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		OccurredAt:    event.CreatedAt,
		PublishedAt:   publishedAt,
	}
	if json.Valid(event.Payload) {
		env.Payload = json.RawMessage(event.Payload)
	}
	return env
}

// Marshal кодирует конверт события в JSON.
func Marshal(event domain.OutboxMessage) ([]byte, error) {
	data, err := json.Marshal(NewEnvelope(event, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// PartitionKey возвращает ключ упорядочивания: события одного заказа идут в одну партицию.
func PartitionKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

// DeadLetter: содержимое сообщения в DLQ: исходное событие и причина, по которой его не удалось доставить.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// NewDeadLetter собирает dead letter для события, исчерпавшего попытки публикации.
func NewDeadLetter(event domain.OutboxMessage, publishErr error, at time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		DLQPublishedAt: at,
	}
	if publishErr != nil {
		letter.PublishError = publishErr.Error()
	}
	if json.Valid(event.Payload) {
		letter.Payload = json.RawMessage(event.Payload)
	}
	return letter
}

// OutboxMessage восстанавливает исходное событие для повторной публикации.
func (l DeadLetter) OutboxMessage() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            l.OutboxID,
		AggregateType: l.AggregateType,
		AggregateID:   l.AggregateID,
		EventType:     l.EventType,
		Payload:       []byte(l.Payload),
	}
}
