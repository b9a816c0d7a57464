package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one order event type to its topic.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, uuid.UUID, error)
}

// ResolvedEvent is an outbox row that passed validation and is ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry knows every order event the storefront emits.
type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func rejectf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// NewEventRegistry routes both order events to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.OrdersTopic)
	if topic == "" {
		return nil, errors.New("orders topic is required")
	}

	return &EventRegistry{byType: map[enums.OutboxEventType]EventDescriptor{
		enums.EventOrderCreated: orderEvent(enums.EventOrderCreated, topic,
			func(p *payloads.OrderCreatedEvent) uuid.UUID { return p.OrderID }),
		enums.EventOrderStatusChanged: orderEvent(enums.EventOrderStatusChanged, topic,
			func(p *payloads.OrderStatusChangedEvent) uuid.UUID { return p.OrderID }),
	}}, nil
}

func orderEvent[T any](eventType enums.OutboxEventType, topic string, orderOf func(*T) uuid.UUID) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		Topic:         topic,
		decode: func(data json.RawMessage) (any, uuid.UUID, error) {
			payload := new(T)
			if err := json.Unmarshal(data, payload); err != nil {
				return nil, uuid.Nil, err
			}
			return payload, orderOf(payload), nil
		},
	}
}

// Resolve checks a row against its event type and decodes the payload. Every failure is
// non-retryable: the row will not change, so publishing it again cannot succeed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[event.EventType]
	switch {
	case !ok:
		return nil, rejectf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, rejectf("%s belongs to %s aggregates, got %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, rejectf("%s row has no order id", event.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, rejectf("decode envelope: %w", err)
	}
	if envelope.Version < 1 || envelope.Version > outbox.EventVersion {
		return nil, rejectf("unsupported envelope version %d", envelope.Version)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, rejectf("payload missing for %s", event.EventType)
	}

	payload, orderID, err := desc.decode(data)
	if err != nil {
		return nil, rejectf("decode %s payload: %w", event.EventType, err)
	}
	// the ordering key comes from the row, so a payload naming another order would be
	// delivered in the wrong sequence
	if orderID != event.AggregateID {
		return nil, rejectf("%s payload names order %s, row belongs to %s", event.EventType, orderID, event.AggregateID)
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
