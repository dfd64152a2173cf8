package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	handshakeCleanupAge = 5 * time.Minute // evict idle limiters

	// rateLimiterShards controls how many independent shards the rate limiter
	// uses.  Each shard has its own mutex, which reduces lock contention
	// under concurrent handshakes from distinct addresses.
	rateLimiterShards = 16
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter is a sharded per-key limiter for WebSocket handshakes.
// Keys are mapped to one of [rateLimiterShards] shards via FNV hashing.
// A nil rateLimiter allows everything.
type rateLimiter struct {
	limit  rate.Limit
	burst  int
	shards [rateLimiterShards]rateLimiterShard
}

type rateLimiterShard struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

// newRateLimiter returns nil when perSecond is not positive.
func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	rl := &rateLimiter{limit: rate.Limit(perSecond), burst: burst}
	for i := range rl.shards {
		rl.shards[i].entries = make(map[string]*limiterEntry)
	}
	return rl
}

func (rl *rateLimiter) shard(key string) *rateLimiterShard {
	return &rl.shards[shardIndex(key)]
}

func shardIndex(key string) int {
	const (
		fnvOffset32 = uint32(2166136261)
		fnvPrime32  = uint32(16777619)
	)
	h := fnvOffset32
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime32
	}
	return int(h % uint32(rateLimiterShards))
}

func (rl *rateLimiter) allow(key string) bool {
	return rl.allowAt(key, time.Now())
}

func (rl *rateLimiter) allowAt(key string, now time.Time) bool {
	if rl == nil {
		return true
	}
	s := rl.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// cleanup evicts idle limiters across all shards. It runs from the janitor
// so allow() never iterates a map.
func (rl *rateLimiter) cleanup() {
	if rl == nil {
		return
	}
	now := time.Now()
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		for k, v := range s.entries {
			if now.Sub(v.lastSeen) > handshakeCleanupAge {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}
