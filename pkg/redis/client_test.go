package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed on first request")
	}
	if count != 1 {
		t.Fatalf("expected counter 1 got %d", count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected expire for first increment")
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestFixedWindowAllowStartsFreshBucket(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	now := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	client := &Client{store: mock, now: func() time.Time { return now }}

	for i := 0; i < 2; i++ {
		if _, _, err := client.FixedWindowAllow(ctx, "ip:1", 1, time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, ok := mock.incr["inv:rate_limit:ip:1:"+fmt.Sprint(now.Truncate(time.Minute).Unix())]; !ok {
		t.Fatalf("expected bucketed counter key, got %v", mock.incr)
	}

	now = now.Add(time.Minute)
	allowed, count, err := client.FixedWindowAllow(ctx, "ip:1", 1, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("next window should start at 1, allowed=%v count=%d", allowed, count)
	}
}

func TestCompareAndDeleteOnlyRemovesMatchingValue(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["inv:lock:sweeper"] = "replica-a/1"

	deleted, err := client.CompareAndDelete(ctx, "inv:lock:sweeper", "replica-b/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Fatalf("mismatched owner must not delete")
	}
	deleted, err = client.CompareAndDelete(ctx, "inv:lock:sweeper", "replica-a/1")
	if err != nil || !deleted {
		t.Fatalf("expected delete, got deleted=%v err=%v", deleted, err)
	}
	if _, ok := mock.data["inv:lock:sweeper"]; ok {
		t.Fatalf("key should be gone")
	}
}

func TestStockSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.StockKey("sku-1")
	if err := client.Set(ctx, key, `{"available":3}`, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != `{"available":3}` {
		t.Fatalf("unexpected cached value %q", value)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !IsMiss(err) {
		t.Fatalf("expected cache miss after delete, got %v", err)
	}
}

func TestSetIfGenerationRejectsFillsAfterBump(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	entry, gen := client.StockKey("sku-1"), client.StockGenerationKey("sku-1")

	seen, err := client.Generation(ctx, gen)
	if err != nil || seen != 0 {
		t.Fatalf("missing generation should read 0, got %d err=%v", seen, err)
	}
	if _, err := client.BumpGeneration(ctx, gen, entry, time.Hour); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	written, err := client.SetIfGeneration(ctx, entry, []byte(`{"reserved":0}`), time.Minute, gen, seen)
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if written {
		t.Fatalf("fill from an older generation must be dropped")
	}

	current, _ := client.Generation(ctx, gen)
	written, err = client.SetIfGeneration(ctx, entry, []byte(`{"reserved":4}`), time.Minute, gen, current)
	if err != nil || !written {
		t.Fatalf("expected current generation fill, written=%v err=%v", written, err)
	}
	if mock.data[entry] != `{"reserved":4}` {
		t.Fatalf("unexpected entry %q", mock.data[entry])
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := client.SetNX(context.Background(), "k", "v", time.Second); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "inv:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.StockKey("sku-1"); got != "inv:stock:sku-1" {
		t.Fatalf("unexpected stock key %s", got)
	}
	if got := client.StockGenerationKey("sku-1"); got != "inv:stock_gen:sku-1" {
		t.Fatalf("unexpected stock generation key %s", got)
	}
	if got := client.LockKey("reservation-expiry"); got != "inv:lock:reservation-expiry" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.RevokedTokenKey("jti-1"); got != "inv:revoked_token:jti-1" {
		t.Fatalf("unexpected revoked token key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "inv:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) runScript(sha string, keys []string, args []any) *redis.Cmd {
	switch sha {
	case compareAndDelete.Hash():
		if m.data[keys[0]] == fmt.Sprint(args[0]) {
			delete(m.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case bumpGeneration.Hash():
		m.incr[keys[0]]++
		m.data[keys[0]] = fmt.Sprint(m.incr[keys[0]])
		delete(m.data, keys[1])
		return redis.NewCmdResult(m.incr[keys[0]], nil)
	case setIfGeneration.Hash():
		current, ok := m.data[keys[1]]
		if !ok {
			current = "0"
		}
		if current != fmt.Sprint(args[0]) {
			return redis.NewCmdResult(int64(0), nil)
		}
		m.data[keys[0]] = asString(args[1])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("NOSCRIPT %s", sha))
}

func asString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.runScript(redis.NewScript(script).Hash(), keys, args)
}

func (m *mockCmdable) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.runScript(sha, keys, args)
}

func (m *mockCmdable) EvalRO(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.runScript(redis.NewScript(script).Hash(), keys, args)
}

func (m *mockCmdable) EvalShaRO(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.runScript(sha, keys, args)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}
