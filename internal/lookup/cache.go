package lookup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

// DefaultMaxEntries bounds the entries a MemoryCache keeps per carrier.
const DefaultMaxEntries = 10000

// Cache stores encoded lookup answers per carrier.
//
// Every carrier has a generation that Invalidate advances. Callers read the
// generation before querying the store and store the answer under it, so an
// answer computed before an invalidation is never served after it.
type Cache interface {
	Generation(ctx context.Context, carrierID string) (uint64, error)
	// Get decodes the cached value into dst and reports whether it was found.
	Get(ctx context.Context, carrierID string, gen uint64, key string, dst any) (bool, error)
	Set(ctx context.Context, carrierID string, gen uint64, key string, value any) error
	// Invalidate drops every entry of the carrier.
	Invalidate(ctx context.Context, carrierID string) error
}

// MemoryCache is a process-local Cache. Expired entries are swept once per
// TTL and each carrier holds at most maxEntries answers.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

type memoryBucket struct {
	gen       uint64
	entries   map[string]memoryEntry
	nextSweep time.Time
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// NewMemoryCache creates an in-memory cache. A zero ttl keeps entries until
// invalidated or evicted.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		buckets:    make(map[string]*memoryBucket),
	}
}

// WithMaxEntries sets the per-carrier entry limit.
func (c *MemoryCache) WithMaxEntries(n int) *MemoryCache {
	if n > 0 {
		c.maxEntries = n
	}
	return c
}

func (c *MemoryCache) Generation(ctx context.Context, carrierID string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bucketLocked(carrierID).gen, nil
}

func (c *MemoryCache) Get(ctx context.Context, carrierID string, gen uint64, key string, dst any) (bool, error) {
	c.mu.Lock()
	var (
		e  memoryEntry
		ok bool
	)
	if b := c.buckets[carrierID]; b != nil && b.gen == gen {
		e, ok = b.entries[key]
		if ok && c.expired(e, c.now()) {
			delete(b.entries, key)
			ok = false
		}
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set stores value unless gen is no longer the carrier's generation.
func (c *MemoryCache) Set(ctx context.Context, carrierID string, gen uint64, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.bucketLocked(carrierID)
	if b.gen != gen {
		return nil
	}

	now := c.now()
	if c.ttl > 0 && !now.Before(b.nextSweep) {
		c.sweepLocked(b, now)
		b.nextSweep = now.Add(c.ttl)
	}
	if _, exists := b.entries[key]; !exists && len(b.entries) >= c.maxEntries {
		c.sweepLocked(b, now)
		if len(b.entries) >= c.maxEntries {
			evictOldest(b)
		}
	}
	b.entries[key] = memoryEntry{data: data, expires: now.Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, carrierID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.bucketLocked(carrierID)
	b.gen++
	b.entries = make(map[string]memoryEntry)
	return nil
}

func (c *MemoryCache) bucketLocked(carrierID string) *memoryBucket {
	b, ok := c.buckets[carrierID]
	if !ok {
		b = &memoryBucket{entries: make(map[string]memoryEntry)}
		c.buckets[carrierID] = b
	}
	return b
}

func (c *MemoryCache) expired(e memoryEntry, now time.Time) bool {
	return c.ttl > 0 && !now.Before(e.expires)
}

func (c *MemoryCache) sweepLocked(b *memoryBucket, now time.Time) {
	for key, e := range b.entries {
		if c.expired(e, now) {
			delete(b.entries, key)
		}
	}
}

// evictOldest drops the entry closest to expiry, which is the oldest write.
func evictOldest(b *memoryBucket) {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for key, e := range b.entries {
		if !found || e.expires.Before(oldest) {
			oldestKey, oldest, found = key, e.expires, true
		}
	}
	if found {
		delete(b.entries, oldestKey)
	}
}

// RedisCache is a Cache shared between instances through Redis.
//
// Keys embed a per-carrier generation counter; invalidating a carrier bumps
// the counter so older entries are never read again and expire by TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisCache connects to Redis. The connection is checked lazily.
func NewRedisCache(opts RedisOptions) *RedisCache {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "uadirectory"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Generation(ctx context.Context, carrierID string) (uint64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(carrierID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Get(ctx context.Context, carrierID string, gen uint64, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(carrierID, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set writes under gen. An answer from an older generation lands on a key
// that readers no longer compute and expires unread.
func (c *RedisCache) Set(ctx context.Context, carrierID string, gen uint64, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(carrierID, gen, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, carrierID string) error {
	if err := c.client.Incr(ctx, c.generationKey(carrierID)).Err(); err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	return nil
}

func (c *RedisCache) key(carrierID string, gen uint64, key string) string {
	return fmt.Sprintf("%s:%s:%d:%s", c.prefix, carrierID, gen, key)
}

func (c *RedisCache) generationKey(carrierID string) string {
	return c.prefix + ":gen:" + carrierID
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
