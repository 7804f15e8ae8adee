package ingestion

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers delivered asset addresses.
type Deduper interface {
	// MarkSeen records address and reports whether it was not seen before.
	MarkSeen(ctx context.Context, address string) (bool, error)

	// Forget removes address so a later delivery is forwarded again.
	Forget(ctx context.Context, address string) error
}

// DefaultDedupTTL bounds how long an address stays deduplicated.
const DefaultDedupTTL = time.Hour

// MemoryDeduper is a process-local Deduper backed by go-cache.
type MemoryDeduper struct {
	seen *cache.Cache
}

// NewMemoryDeduper creates a MemoryDeduper whose entries expire after ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{seen: cache.New(ttl, time.Minute)}
}

// MarkSeen implements Deduper. Add is atomic, so concurrent callers agree on
// which one saw the address first.
func (d *MemoryDeduper) MarkSeen(_ context.Context, address string) (bool, error) {
	return d.seen.Add(address, struct{}{}, cache.DefaultExpiration) == nil, nil
}

// Forget implements Deduper.
func (d *MemoryDeduper) Forget(_ context.Context, address string) error {
	d.seen.Delete(address)
	return nil
}

// Len returns the number of remembered addresses.
func (d *MemoryDeduper) Len() int {
	return d.seen.ItemCount()
}

// RedisDeduper shares dedup state between ingestor replicas.
type RedisDeduper struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a RedisDeduper. Keys are prefix + address.
func NewRedisDeduper(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = "signal:seen:"
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

// MarkSeen implements Deduper with SET NX.
func (d *RedisDeduper) MarkSeen(ctx context.Context, address string) (bool, error) {
	return d.rdb.SetNX(ctx, d.prefix+address, 1, d.ttl).Result()
}

// Forget implements Deduper.
func (d *RedisDeduper) Forget(ctx context.Context, address string) error {
	return d.rdb.Del(ctx, d.prefix+address).Err()
}

var (
	_ Deduper = (*MemoryDeduper)(nil)
	_ Deduper = (*RedisDeduper)(nil)
)
