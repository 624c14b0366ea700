package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: &bytes.Buffer{}})
}

func TestRunStopsAllConsumersWhenOneFails(t *testing.T) {
	boom := errors.New("subscription deleted")
	stopped := make(chan struct{})
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Consumers: []consumer{
			{name: "failing", run: func(context.Context) error { return boom }},
			{name: "blocking", run: func(ctx context.Context) error {
				<-ctx.Done()
				close(stopped)
				return ctx.Err()
			}},
		},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorIs(t, err, boom)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("blocking consumer was not cancelled")
	}
}

func TestRunFailsFastOnDependency(t *testing.T) {
	ran := false
	svc, err := NewService(ServiceParams{
		Logger:       testLogger(),
		Consumers:    []consumer{{name: "stock", run: func(context.Context) error { ran = true; return nil }}},
		Dependencies: []dependency{{name: "redis", ping: func(context.Context) error { return errors.New("refused") }}},
	})
	require.NoError(t, err)
	require.Error(t, svc.Run(context.Background()))
	require.False(t, ran)
}

func TestRunReturnsContextErrorOnShutdown(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Consumers: []consumer{{name: "stock", run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)
}
