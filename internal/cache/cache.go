// Package cache is the fingerprint-keyed response cache (spec.md §4.4,
// component C4): get/set/delete/exists/clear with TTL expiry, safe for
// concurrent use, with duplicate concurrent fills collapsed into one.
//
// Grounded on original_source/app/services/cache_service.py's CacheService
// stub (same five operations, same TTL-on-set contract) and
// original_source/app/utils/cache_utils.py's generate_cache_key (Fingerprint
// below is a direct port: canonical JSON over positional/named arguments,
// sorted keys, MD5 hex digest, "prefix:digest" key format).
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fingerprint builds a cache key from a prefix and a set of named arguments,
// canonicalizing them into a single JSON document with sorted keys so that
// argument order never affects the key, then hex-encoding an MD5 digest of
// that document. args with nil or empty values are still included — callers
// are expected to pass only the arguments that participate in the identity
// of the cached item.
//
// The original Python implementation distinguishes positional args (wrapped
// under an "args" key) from keyword args (merged at the top level); Go has
// no positional/keyword split, so callers pass everything as named fields
// and Fingerprint nests them the same way the original nests **kwargs.
func Fingerprint(prefix string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(args))
	for _, k := range keys {
		ordered[k] = args[k]
	}

	// json.Marshal on a map already sorts keys alphabetically, matching the
	// original's json.dumps(..., sort_keys=True).
	data, err := json.Marshal(ordered)
	if err != nil {
		// Arguments here are always plain JSON-marshalable values built by
		// our own callers; a marshal failure indicates a programming error,
		// not a runtime condition worth a full error return.
		panic("cache: fingerprint arguments not JSON-marshalable: " + err.Error())
	}

	sum := md5.Sum(data)
	return prefix + ":" + hex.EncodeToString(sum[:])
}

type entry struct {
	value    any
	expireAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// Cache is an in-process, TTL-based key-value cache. The zero value is not
// usable; construct with New.
type Cache struct {
	mu    sync.Mutex
	store map[string]entry
	group singleflight.Group

	// sweepBatch bounds how many expired entries Set opportunistically
	// evicts per call, so a single Set never pays for scanning the whole
	// map (spec.md §5 resource-model note: cache operations must stay O(1)
	// amortized, not O(cache size), under concurrent load).
	sweepBatch int
}

// New returns an empty Cache. sweepBatch <= 0 disables the opportunistic
// sweep (every Set then relies purely on lazy expiry in Get/Exists).
func New(sweepBatch int) *Cache {
	return &Cache{store: make(map[string]entry), sweepBatch: sweepBatch}
}

// Get returns the cached value for key and whether it was present and
// unexpired.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.store, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL. ttl <= 0 means the entry
// never expires.
func (c *Cache) Set(_ context.Context, key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expireAt time.Time
	if ttl > 0 {
		expireAt = time.Now().Add(ttl)
	}
	c.store[key] = entry{value: value, expireAt: expireAt}
	c.sweepLocked()
}

// sweepLocked opportunistically evicts up to sweepBatch expired entries.
// Caller must hold c.mu.
func (c *Cache) sweepLocked() {
	if c.sweepBatch <= 0 {
		return
	}
	now := time.Now()
	checked := 0
	for k, e := range c.store {
		if checked >= c.sweepBatch {
			return
		}
		checked++
		if e.expired(now) {
			delete(c.store, k)
		}
	}
}

// Delete removes key, reporting whether it was present.
func (c *Cache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.store[key]; !ok {
		return false
	}
	delete(c.store, key)
	return true
}

// Exists reports whether key is present and unexpired, without returning its
// value.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	_, ok := c.Get(ctx, key)
	return ok
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.store)
	c.store = make(map[string]entry)
	return n
}

// GetOrFill returns the cached value for key if present, otherwise calls
// fill to compute it, stores the result with ttl, and returns it. Concurrent
// GetOrFill calls for the same key collapse into a single fill call via
// singleflight, so a cache-miss stampede never runs fill more than once at a
// time per key — a strengthening over the original's single-process asyncio
// model, which has no concurrent-miss concern to begin with.
func (c *Cache) GetOrFill(ctx context.Context, key string, ttl time.Duration, fill func(context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(ctx, key); ok {
			return v, nil
		}
		v, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, v, ttl)
		return v, nil
	})
	return v, err
}
