package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
)

func TestOutboxRetentionJobPrunesBothTables(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	outboxRepo := &fakePruner{rows: 7}
	dlq := &fakePruner{rows: 2}
	job := newOutboxRetentionJob(t, outboxRepo, dlq)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-outboxRetentionDays * 24 * time.Hour)
	if !outboxRepo.lastCutoff.Equal(expectedCutoff) || !dlq.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s / %s", expectedCutoff, outboxRepo.lastCutoff, dlq.lastCutoff)
	}
	if outboxRepo.called != 1 || dlq.called != 1 {
		t.Fatalf("expected one call each, got %d / %d", outboxRepo.called, dlq.called)
	}
}

func TestOutboxRetentionJobContinuesAfterOutboxError(t *testing.T) {
	outboxRepo := &fakePruner{err: errors.New("boom")}
	dlq := &fakePruner{}
	job := newOutboxRetentionJob(t, outboxRepo, dlq)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if dlq.called != 1 {
		t.Fatalf("dlq prune should still run, called %d", dlq.called)
	}
}

func newOutboxRetentionJob(t *testing.T, outboxRepo, dlq *fakePruner) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Outbox: outboxRepo,
		DLQ:    dlq,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

type fakePruner struct {
	lastCutoff time.Time
	called     int
	rows       int64
	err        error
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return f.prune(cutoff)
}

func (f *fakePruner) DeleteFailedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return f.prune(cutoff)
}

func (f *fakePruner) prune(cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return f.rows, nil
}
