package inventory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/redis"
)

// generationTTL keeps a product's invalidation counter well past the
// longest fill that could still be in flight.
const generationTTL = 24 * time.Hour

// StockCache is the read-through cache behind GetStock. Mutations never read it.
//
// A miss hands back a FillToken taken before the database read. Set only
// stores the snapshot if no Invalidate happened since that token was taken, so
// a fill that raced a mutation cannot put the pre-mutation row back.
type StockCache interface {
	Get(ctx context.Context, productID uuid.UUID) (*StockSnapshot, FillToken, bool)
	Set(ctx context.Context, snapshot StockSnapshot, token FillToken)
	Invalidate(ctx context.Context, productID uuid.UUID)
}

// FillToken records the invalidation generation observed on a cache miss.
// The zero value never fills.
type FillToken struct {
	generation int64
	valid      bool
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Generation(ctx context.Context, key string) (int64, error)
	BumpGeneration(ctx context.Context, genKey, entryKey string, ttl time.Duration) (int64, error)
	SetIfGeneration(ctx context.Context, key string, value any, ttl time.Duration, genKey string, generation int64) (bool, error)
	StockKey(productID string) string
	StockGenerationKey(productID string) string
}

type redisStockCache struct {
	store cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewRedisStockCache stores snapshots as JSON under the product's stock key.
// Cache failures are logged and treated as misses.
func NewRedisStockCache(store cacheStore, ttl time.Duration, logg *logger.Logger) StockCache {
	if store == nil {
		return NoopStockCache()
	}
	return &redisStockCache{store: store, ttl: ttl, logg: logg}
}

func (c *redisStockCache) Get(ctx context.Context, productID uuid.UUID) (*StockSnapshot, FillToken, bool) {
	raw, err := c.store.Get(ctx, c.store.StockKey(productID.String()))
	if err == nil {
		var snapshot StockSnapshot
		decodeErr := json.Unmarshal([]byte(raw), &snapshot)
		if decodeErr == nil {
			return &snapshot, FillToken{}, true
		}
		c.warn(ctx, productID, "stock cache entry unreadable", decodeErr)
	} else if !redis.IsMiss(err) {
		c.warn(ctx, productID, "stock cache read failed", err)
		return nil, FillToken{}, false
	}
	gen, err := c.store.Generation(ctx, c.store.StockGenerationKey(productID.String()))
	if err != nil {
		c.warn(ctx, productID, "stock cache generation read failed", err)
		return nil, FillToken{}, false
	}
	return nil, FillToken{generation: gen, valid: true}, false
}

func (c *redisStockCache) Set(ctx context.Context, snapshot StockSnapshot, token FillToken) {
	if !token.valid {
		return
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		c.warn(ctx, snapshot.ProductID, "stock cache encode failed", err)
		return
	}
	productID := snapshot.ProductID.String()
	written, err := c.store.SetIfGeneration(ctx, c.store.StockKey(productID), payload, c.ttl, c.store.StockGenerationKey(productID), token.generation)
	if err != nil {
		c.warn(ctx, snapshot.ProductID, "stock cache write failed", err)
		return
	}
	if !written && c.logg != nil {
		c.logg.Debug(c.logg.WithProductID(ctx, productID), "stock cache fill superseded by invalidation")
	}
}

func (c *redisStockCache) Invalidate(ctx context.Context, productID uuid.UUID) {
	id := productID.String()
	if _, err := c.store.BumpGeneration(ctx, c.store.StockGenerationKey(id), c.store.StockKey(id), generationTTL); err != nil {
		c.warn(ctx, productID, "stock cache invalidation failed", err)
	}
}

func (c *redisStockCache) warn(ctx context.Context, productID uuid.UUID, msg string, err error) {
	if c.logg == nil {
		return
	}
	logCtx := c.logg.WithProductID(ctx, productID.String())
	logCtx = c.logg.WithField(logCtx, "error", err.Error())
	c.logg.Warn(logCtx, msg)
}

type noopStockCache struct{}

// NoopStockCache disables caching; every GetStock reads the database.
func NoopStockCache() StockCache {
	return noopStockCache{}
}

func (noopStockCache) Get(context.Context, uuid.UUID) (*StockSnapshot, FillToken, bool) {
	return nil, FillToken{}, false
}
func (noopStockCache) Set(context.Context, StockSnapshot, FillToken) {}
func (noopStockCache) Invalidate(context.Context, uuid.UUID)         {}
