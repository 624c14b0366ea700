package stockevents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	pkgkafka "github.com/angelmondragon/inventory-backoffice/pkg/kafka"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox/registry"
)

const (
	kafkaRetryBase = 200 * time.Millisecond
	kafkaRetryMax  = 10 * time.Second
)

// Delivery is a broker message stripped to what the consumer needs.
type Delivery struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

type decoder interface {
	Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type onceRunner interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

// Service consumes one subscription or topic, decoding deliveries through the
// event registry and running each event once per consumer name.
type Service struct {
	consumer string
	decoder  decoder
	handler  Handler
	once     onceRunner
	logg     *logger.Logger
}

func NewService(consumer string, decoder decoder, handler Handler, once onceRunner, logg *logger.Logger) (*Service, error) {
	if strings.TrimSpace(consumer) == "" {
		return nil, errors.New("consumer name is required")
	}
	if decoder == nil {
		return nil, errors.New("event registry is required")
	}
	if handler == nil {
		return nil, errors.New("stock event handler is required")
	}
	if once == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{consumer: consumer, decoder: decoder, handler: handler, once: once, logg: logg}, nil
}

type processResult struct {
	nack bool
}

// RunPubSub consumes until ctx is cancelled. Failed deliveries are nacked for redelivery.
func (s *Service) RunPubSub(ctx context.Context, sub *gcppubsub.Subscriber) error {
	if sub == nil {
		return errors.New("pubsub subscription is required")
	}
	return sub.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		res := s.process(innerCtx, Delivery{ID: msg.ID, Data: msg.Data, Attributes: msg.Attributes})
		if res.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// KafkaReader is the subset of *kafka.Reader the consumer drives.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// RunKafka consumes until ctx is cancelled. A failed message is retried in place
// with backoff before its offset is committed, so partition order is kept.
func (s *Service) RunKafka(ctx context.Context, reader KafkaReader) error {
	if reader == nil {
		return errors.New("kafka reader is required")
	}
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}
		delivery := Delivery{
			ID:         fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
			Data:       msg.Value,
			Attributes: pkgkafka.Attributes(msg.Headers),
		}
		backoff := retry.WithCappedDuration(kafkaRetryMax, retry.NewExponential(kafkaRetryBase))
		err = retry.Do(ctx, backoff, func(ctx context.Context) error {
			if s.process(ctx, delivery).nack {
				return retry.RetryableError(errors.New("stock event handling failed"))
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit kafka offset: %w", err)
		}
	}
}

func (s *Service) process(ctx context.Context, d Delivery) processResult {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"consumer":   s.consumer,
		"message_id": d.ID,
	})

	event, err := s.decode(d)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invalid stock event dropped")
		return processResult{}
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":     event.ID.String(),
		"event_type":   string(event.Type),
		"aggregate_id": event.AggregateID.String(),
		"occurred_at":  event.OccurredAt.Format(time.RFC3339Nano),
	})

	skipped, err := s.once.Once(logCtx, s.consumer, event.ID, func(ctx context.Context) error {
		return s.handler.Handle(ctx, event)
	})
	switch {
	case errors.Is(err, ErrUnsupportedEventType):
		s.logg.Warn(logCtx, "no handler for stock event")
		return processResult{}
	case err != nil:
		s.logg.Error(logCtx, "stock event handler failed", err)
		return processResult{nack: true}
	case skipped:
		s.logg.Info(logCtx, "stock event already processed")
		return processResult{}
	}
	s.logg.Debug(logCtx, "stock event handled")
	return processResult{}
}

func (s *Service) decode(d Delivery) (Event, error) {
	attr := func(key string) string { return strings.TrimSpace(d.Attributes[key]) }

	eventType, err := enums.ParseOutboxEventType(attr(outbox.AttrEventType))
	if err != nil {
		return Event{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr(outbox.AttrAggregateType))
	if err != nil {
		return Event{}, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID, err := uuid.Parse(attr(outbox.AttrAggregateID))
	if err != nil {
		return Event{}, fmt.Errorf("aggregate_id: %w", err)
	}

	resolved, err := s.decoder.Resolve(models.OutboxEvent{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       d.Data,
	})
	if err != nil {
		return Event{}, err
	}

	rawID := strings.TrimSpace(resolved.Envelope.EventID)
	if rawID == "" {
		rawID = attr(outbox.AttrEventID)
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return Event{}, fmt.Errorf("event_id: %w", err)
	}

	occurredAt := resolved.Envelope.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr(outbox.AttrCreatedAt)); err == nil {
			occurredAt = parsed
		}
	}

	return Event{
		ID:          eventID,
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  occurredAt.UTC(),
		Actor:       resolved.Envelope.Actor,
		Payload:     resolved.Payload,
	}, nil
}
