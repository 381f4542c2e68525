package application

import (
	"testing"
	"time"
)

func TestCatalogCacheStoresAndReturnsCopies(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	current := fixed
	cache := newCatalogCache(time.Minute, 4, func() time.Time { return current })

	original := []Session{{ScheduleID: "schedule-1", Room: "105"}}
	cache.Store("key", original)

	// Mutating the original slice should not affect the cached copy.
	original[0].Room = "mutated"

	cached, ok := cache.Get("key")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached[0].Room != "105" {
		t.Fatalf("expected cached room to remain unchanged, got %s", cached[0].Room)
	}

	cached[0].Room = "changed"
	cachedAgain, ok := cache.Get("key")
	if !ok {
		t.Fatalf("expected cache hit on second read")
	}
	if cachedAgain[0].Room != "105" {
		t.Fatalf("expected cache to return independent copy, got %s", cachedAgain[0].Room)
	}
}

func TestCatalogCacheExpiresEntries(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	current := fixed
	cache := newCatalogCache(time.Second, 4, func() time.Time { return current })

	cache.Store("key", []Session{{ScheduleID: "schedule-1"}})
	if _, ok := cache.Get("key"); !ok {
		t.Fatalf("expected cache hit before expiry")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestCatalogCacheEvictsWhenFull(t *testing.T) {
	cache := newCatalogCache(time.Minute, 2, time.Now)
	cache.Store("a", []Session{{ScheduleID: "a"}})
	cache.Store("b", []Session{{ScheduleID: "b"}})
	cache.Store("c", []Session{{ScheduleID: "c"}})

	if len(cache.entries) != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", len(cache.entries))
	}
	if _, ok := cache.Get("c"); !ok {
		t.Fatalf("expected newest entry to be cached")
	}
}

func TestCatalogCacheInvalidate(t *testing.T) {
	cache := newCatalogCache(time.Minute, 4, time.Now)
	cache.Store("key", []Session{{ScheduleID: "schedule-1"}})
	cache.Invalidate()
	if _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache to be empty after invalidation")
	}
}
