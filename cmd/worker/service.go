package main

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/inventory-backoffice/internal/stockevents"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
)

// consumer is one subscription or topic feeding a stockevents service.
type consumer struct {
	name string
	run  func(ctx context.Context) error
}

type dependency struct {
	name string
	ping func(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Consumers    []consumer
	Dependencies []dependency
}

// Service runs the stock event consumers side by side. The first consumer to
// fail stops the rest.
type Service struct {
	logg      *logger.Logger
	consumers []consumer
	deps      []dependency
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	return &Service{logg: params.Logger, consumers: params.Consumers, deps: params.Dependencies}, nil
}

func pubSubConsumer(name string, svc *stockevents.Service, sub *gcppubsub.Subscriber) consumer {
	return consumer{name: name, run: func(ctx context.Context) error { return svc.RunPubSub(ctx, sub) }}
}

type kafkaReader interface {
	stockevents.KafkaReader
	Close() error
}

func kafkaConsumer(name string, svc *stockevents.Service, reader kafkaReader) consumer {
	return consumer{name: name, run: func(ctx context.Context) error {
		defer reader.Close()
		return svc.RunKafka(ctx, reader)
	}}
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		group.Go(func() error {
			consumerCtx := s.logg.WithField(groupCtx, "consumer", c.name)
			s.logg.Info(consumerCtx, "stock event consumer started")
			err := c.run(consumerCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(consumerCtx, "stock event consumer stopped unexpectedly", err)
				return fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
