package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/inventory-backoffice/pkg/config"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// Topics names the destinations stock events are routed to.
type Topics struct {
	Stock string
	Alert string
}

// TopicsFromPubSub reads the Pub/Sub topic names.
func TopicsFromPubSub(cfg config.PubSubConfig) Topics {
	return Topics{Stock: cfg.StockTopic, Alert: cfg.AlertTopic}
}

// TopicsFromKafka reads the Kafka topic names.
func TopicsFromKafka(cfg config.KafkaConfig) Topics {
	return Topics{Stock: cfg.StockTopic, Alert: cfg.AlertTopic}
}

// ForTransport picks the topic names of the configured event transport.
func ForTransport(cfg *config.Config) Topics {
	if cfg.Eventing.TransportKind() == config.TransportKafka {
		return TopicsFromKafka(cfg.Kafka)
	}
	return TopicsFromPubSub(cfg.PubSub)
}

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry. Stock movements go to the stock topic;
// low-stock and deactivation notices go to the alert topic.
func NewEventRegistry(topics Topics) (*EventRegistry, error) {
	if topics.Stock == "" {
		return nil, fmt.Errorf("stock topic is required")
	}
	if topics.Alert == "" {
		return nil, fmt.Errorf("alert topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{EventType: enums.EventStockItemCreated, Topic: topics.Stock, PayloadFactory: func() any { return &payloads.StockItemCreatedEvent{} }},
		{EventType: enums.EventStockReserved, Topic: topics.Stock, PayloadFactory: func() any { return &payloads.StockReservedEvent{} }},
		{EventType: enums.EventStockCommitted, Topic: topics.Stock, PayloadFactory: func() any { return &payloads.StockCommittedEvent{} }},
		{EventType: enums.EventStockReservationCancelled, Topic: topics.Stock, PayloadFactory: func() any { return &payloads.StockReservationCancelledEvent{} }},
		{EventType: enums.EventStockExpired, Topic: topics.Stock, PayloadFactory: func() any { return &payloads.StockExpiredEvent{} }},
		{EventType: enums.EventStockAdjusted, Topic: topics.Stock, PayloadFactory: func() any { return &payloads.StockAdjustedEvent{} }},
		{EventType: enums.EventLowStockDetected, Topic: topics.Alert, PayloadFactory: func() any { return &payloads.LowStockDetectedEvent{} }},
		{EventType: enums.EventStockItemDeactivated, Topic: topics.Alert, PayloadFactory: func() any { return &payloads.StockItemDeactivatedEvent{} }},
	} {
		desc.AggregateType = enums.AggregateStockItem
		reg.register(desc)
	}
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Topics returns every distinct destination, for readiness checks.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		out = append(out, desc.Topic)
	}
	return out
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if !envelope.Supported() {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported envelope version %d", envelope.Version))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
