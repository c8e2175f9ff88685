package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "jobs:dedup:"

// DefaultDedupTTL is the default re-emit window for the expensive
// recompute dedup guard (§5 "Deduplication guard"): a crash releases
// the lock automatically once the TTL expires.
const DefaultDedupTTL = 900 * time.Second

// DedupGuard takes a named SET-if-absent lock on the shared KV store;
// re-emits of the same named task within the TTL are short-circuited
// to a no-op by the caller.
type DedupGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedupGuard(client *redis.Client, ttl time.Duration) *DedupGuard {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &DedupGuard{client: client, ttl: ttl}
}

// Acquire reports whether name was newly locked. false means another
// worker (or an earlier attempt of this same task) already holds it.
func (g *DedupGuard) Acquire(ctx context.Context, name string) (bool, error) {
	return g.client.SetNX(ctx, dedupKeyPrefix+name, "1", g.ttl).Result()
}
