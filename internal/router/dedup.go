package router

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator remembers delivery keys for a while so redelivered
// platform events are handled once.
type Deduplicator interface {
	// FirstSeen records key and reports whether it was new.
	FirstSeen(ctx context.Context, key string) (bool, error)
}

// MemoryDeduplicator keeps keys in process memory. Expired keys are
// ignored on lookup and swept at most once per ttl.
type MemoryDeduplicator struct {
	mu        sync.Mutex
	ttl       time.Duration
	seen      map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryDeduplicator builds an in-process deduplicator.
func NewMemoryDeduplicator(ttl time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduplicator) FirstSeen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastSweep) >= d.ttl {
		d.sweep(now)
	}
	if expires, ok := d.seen[key]; ok && now.Before(expires) {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

// Len reports how many keys are held, expired ones included.
func (d *MemoryDeduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *MemoryDeduplicator) sweep(now time.Time) {
	for k, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, k)
		}
	}
	d.lastSweep = now
}

// RedisDeduplicator shares seen keys between replicas with SET NX EX.
type RedisDeduplicator struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduplicator builds a Redis backed deduplicator.
func NewRedisDeduplicator(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduplicator) FirstSeen(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
}
