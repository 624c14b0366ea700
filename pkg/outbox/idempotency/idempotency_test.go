package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	marked      map[string]bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func newFakeStore() *fakeStore {
	return &fakeStore{marked: map[string]bool{}}
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	if f.setNXError != nil {
		return false, f.setNXError
	}
	if f.marked[key] {
		return false, nil
	}
	f.marked[key] = true
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "inv:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.marked, key)
		f.lastDeleted = key
	}
	return nil
}

func TestCheckAndMarkProcessed(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eventID := uuid.New()
	already, err := manager.CheckAndMarkProcessed(context.Background(), "stock-cache", eventID)
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if already {
		t.Fatal("first delivery should not be marked as processed")
	}
	if want := "inv:idempotency:evt:processed:stock-cache:" + eventID.String(); store.lastKey != want {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}

	already, err = manager.CheckAndMarkProcessed(context.Background(), "stock-cache", eventID)
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if !already {
		t.Fatal("redelivery should be reported as processed")
	}
}

func TestCheckAndMarkProcessedValidatesInput(t *testing.T) {
	manager, err := NewManager(newFakeStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected consumer name error")
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "stock-cache", uuid.Nil); err == nil {
		t.Fatal("expected event id error")
	}
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
}

func TestCheckAndMarkProcessedStoreError(t *testing.T) {
	store := newFakeStore()
	store.setNXError = errors.New("boom")
	manager, err := NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "stock-cache", uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOnceSkipsDuplicatesAndReleasesOnFailure(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()
	eventID := uuid.New()

	calls := 0
	failing := func(context.Context) error {
		calls++
		return errors.New("handler down")
	}
	if _, err := manager.Once(ctx, "low-stock-alert", eventID, failing); err == nil {
		t.Fatal("expected handler error")
	}
	if len(store.marked) != 0 {
		t.Fatalf("failed handler should release the mark, got %v", store.marked)
	}

	ok := func(context.Context) error {
		calls++
		return nil
	}
	skipped, err := manager.Once(ctx, "low-stock-alert", eventID, ok)
	if err != nil || skipped {
		t.Fatalf("expected retry to run, skipped=%v err=%v", skipped, err)
	}
	skipped, err = manager.Once(ctx, "low-stock-alert", eventID, ok)
	if err != nil || !skipped {
		t.Fatalf("expected duplicate to be skipped, skipped=%v err=%v", skipped, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
}

func TestDeleteProcessed(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eventID := uuid.New()
	if err := manager.Delete(context.Background(), "stock-cache", eventID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if want := "inv:idempotency:evt:processed:stock-cache:" + eventID.String(); store.lastDeleted != want {
		t.Fatalf("unexpected deleted key %q", store.lastDeleted)
	}
}
