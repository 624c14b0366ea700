package registry

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/angelmondragon/inventory-backoffice/pkg/config"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	reservationID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.StockReservedEvent{ReservationEvent: payloads.ReservationEvent{
		ReservationID: reservationID,
		ProductID:     uuid.New(),
		Quantity:      3,
	}})

	event := models.OutboxEvent{
		EventType:     enums.EventStockReserved,
		AggregateType: enums.AggregateStockItem,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "stock-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.StockReservedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.ReservationID != reservationID || payload.Quantity != 3 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata missing: %+v", resolved.Envelope)
	}
}

func TestEventRegistryRoutesAlertsSeparately(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventLowStockDetected,
		AggregateType: enums.AggregateStockItem,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, mustMarshal(t, payloads.LowStockDetectedEvent{LowStockThreshold: 5})),
	}
	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "alert-topic" {
		t.Fatalf("low stock should route to alerts, got %q", resolved.Descriptor.Topic)
	}

	topics := reg.Topics()
	sort.Strings(topics)
	if len(topics) != 2 || topics[0] != "alert-topic" || topics[1] != "stock-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestEventRegistryRejectsInvalidRows(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("order_created"),
			AggregateType: enums.AggregateStockItem,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.OutboxAggregateType("order"),
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateStockItem,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateStockItem,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"future envelope version": {
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateStockItem,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":2,"eventId":"e-1","data":{"quantity":1}}`),
		},
		"broken envelope": {
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateStockItem,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatal("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(Topics{Stock: "stock"}); err == nil {
		t.Fatal("expected missing alert topic error")
	}
	if _, err := NewEventRegistry(Topics{Alert: "alert"}); err == nil {
		t.Fatal("expected missing stock topic error")
	}
}

func TestForTransport(t *testing.T) {
	cfg := &config.Config{
		Eventing: config.EventingConfig{Transport: "kafka"},
		Kafka:    config.KafkaConfig{StockTopic: "k-stock", AlertTopic: "k-alert"},
		PubSub:   config.PubSubConfig{StockTopic: "p-stock", AlertTopic: "p-alert"},
	}
	if got := ForTransport(cfg); got.Stock != "k-stock" || got.Alert != "k-alert" {
		t.Fatalf("expected kafka topics, got %+v", got)
	}
	cfg.Eventing.Transport = "pubsub"
	if got := ForTransport(cfg); got.Stock != "p-stock" {
		t.Fatalf("expected pubsub topics, got %+v", got)
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(Topics{Stock: "stock-topic", Alert: "alert-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
