package application

import (
	"strings"
	"sync"
	"time"
)

// catalogCache keeps recent schedule listings so repeated dashboard refreshes
// do not hit the catalog while it is unchanged.
type catalogCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]catalogCacheEntry
}

type catalogCacheEntry struct {
	sessions  []Session
	expiresAt time.Time
}

func newCatalogCache(ttl time.Duration, maxEntries int, now func() time.Time) *catalogCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &catalogCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]catalogCacheEntry),
	}
}

func (c *catalogCache) Get(key string) ([]Session, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneSessions(entry.sessions), true
}

func (c *catalogCache) Store(key string, sessions []Session) {
	if c == nil {
		return
	}
	cloned := cloneSessions(sessions)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = catalogCacheEntry{sessions: cloned, expiresAt: expiry}
}

func (c *catalogCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]catalogCacheEntry)
	c.mu.Unlock()
}

func (c *catalogCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *catalogCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneSessions(sessions []Session) []Session {
	if len(sessions) == 0 {
		return nil
	}
	out := make([]Session, len(sessions))
	copy(out, sessions)
	return out
}

func buildCatalogCacheKey(facultyID, schoolYear, semester string) string {
	return strings.ToLower(strings.Join([]string{facultyID, schoolYear, semester}, "|"))
}
