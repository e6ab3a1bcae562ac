// Package dedup absorbs provider webhook redeliveries with a
// process-wide, time-bounded set of already-handled message identities.
//
// The cache is the cheap first line of defense; the persisted
// replies_to scan in the message store remains authoritative after a
// cache miss or process restart.
package dedup

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

const DefaultTTL = 24 * time.Hour

// Cache is a mutex-guarded set of inbound-message identities with
// first-seen timestamps. It is owned by the inbound pipeline and
// injected into handlers; loss on restart is an accepted risk.
type Cache struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewCache creates a cache with the given entry TTL; ttl <= 0 selects
// the 24h default.
func NewCache(log *slog.Logger, ttl time.Duration) *Cache {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		seen:   map[string]time.Time{},
		ttl:    ttl,
		logger: log.With(slog.String("component", "dedup_cache")),
		now:    time.Now,
	}
}

// Key builds the composite identity of one inbound message: channel,
// provider dialog, and provider-native message id.
func Key(channelID, dialogID, messageID string) string {
	return strings.Join([]string{channelID, dialogID, messageID}, ":")
}

// Seen reports whether the key was already handled within the TTL.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seen[key]
	if !ok {
		return false
	}
	if c.now().Sub(at) > c.ttl {
		delete(c.seen, key)
		return false
	}
	return true
}

// MarkSeen records the key. Marking an already-seen key is a no-op and
// keeps the original timestamp.
func (c *Cache) MarkSeen(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = c.now()
}

// Sweep removes entries older than the TTL and returns how many were
// dropped. Scheduled periodically from the serve lifecycle.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for key, at := range c.seen {
		if at.Before(cutoff) {
			delete(c.seen, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("dedup sweep", slog.Int("removed", removed), slog.Int("remaining", len(c.seen)))
	}
	return removed
}

// Len returns the number of cached identities.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
