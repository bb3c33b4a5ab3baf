// Package cache keeps recent successful results, keyed by normalized question and route.
//
// An entry is fresh for the configured TTL, and after that remains available as stale fallback
// data until the stale TTL has passed.
package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/query"
)

type Key struct {
	Question string
	Route    query.Route
}

func NewKey(question string, route query.Route) Key {
	return Key{Question: query.NormalizeQuestion(question), Route: route}
}

type entry struct {
	result   query.Result
	storedAt time.Time
}

// ResultCache is safe for concurrent use.
type ResultCache struct {
	items    *ttlcache.Cache[Key, entry]
	clock    clockwork.Clock
	ttl      time.Duration
	staleTTL time.Duration
}

func NewResultCache(config config.Cache, clock clockwork.Clock) *ResultCache {
	staleTTL := max(config.StaleTTL, config.TTL)

	options := []ttlcache.Option[Key, entry]{
		ttlcache.WithTTL[Key, entry](staleTTL),
		ttlcache.WithDisableTouchOnHit[Key, entry](),
	}
	if config.Capacity > 0 {
		options = append(options, ttlcache.WithCapacity[Key, entry](config.Capacity))
	}

	return &ResultCache{
		items:    ttlcache.New(options...),
		clock:    clock,
		ttl:      config.TTL,
		staleTTL: staleTTL,
	}
}

// Start runs removal of expired entries until Stop is called. It blocks, so should be called in a
// goroutine.
func (cache *ResultCache) Start() {
	cache.items.Start()
}

func (cache *ResultCache) Stop() {
	cache.items.Stop()
}

// Store saves a successful result. Failed results are ignored, since they are never served from
// the cache.
func (cache *ResultCache) Store(key Key, result query.Result) {
	if result.Failed() {
		return
	}
	cache.items.Set(key, entry{result: result, storedAt: cache.clock.Now()}, ttlcache.DefaultTTL)
}

// Fresh returns the cached result for key if it was stored within the TTL.
func (cache *ResultCache) Fresh(key Key) (query.Result, bool) {
	entry, ok := cache.lookup(key, cache.ttl)
	return entry.result, ok
}

// Stale returns the cached result for key if it was stored within the stale TTL, for use when the
// backend cannot give a live answer.
func (cache *ResultCache) Stale(key Key) (result query.Result, storedAt time.Time, ok bool) {
	entry, ok := cache.lookup(key, cache.staleTTL)
	return entry.result, entry.storedAt, ok
}

func (cache *ResultCache) lookup(key Key, maxAge time.Duration) (entry, bool) {
	item := cache.items.Get(key)
	if item == nil {
		return entry{}, false
	}

	stored := item.Value()
	if cache.clock.Since(stored.storedAt) > maxAge {
		return entry{}, false
	}
	return stored, true
}

// Clear removes all entries at once.
func (cache *ResultCache) Clear() {
	cache.items.DeleteAll()
}

func (cache *ResultCache) Len() int {
	return cache.items.Len()
}
