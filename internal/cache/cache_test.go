package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	t.Parallel()

	a := Fingerprint("graphrag_query", map[string]any{"query": "測試問題", "top_k": 3})
	b := Fingerprint("graphrag_query", map[string]any{"top_k": 3, "query": "測試問題"})

	if a != b {
		t.Errorf("Fingerprint order-dependence: %q != %q", a, b)
	}
}

func TestFingerprint_DifferentArgsDifferentKeys(t *testing.T) {
	t.Parallel()

	a := Fingerprint("graphrag_query", map[string]any{"query": "a"})
	b := Fingerprint("graphrag_query", map[string]any{"query": "b"})

	if a == b {
		t.Errorf("Fingerprint collided for distinct args: %q", a)
	}
}

func TestFingerprint_HasPrefixAndHexDigest(t *testing.T) {
	t.Parallel()

	key := Fingerprint("graphrag_query", map[string]any{"query": "x"})
	const prefix = "graphrag_query:"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		t.Fatalf("Fingerprint %q missing prefix %q", key, prefix)
	}
	digest := key[len(prefix):]
	if len(digest) != 32 {
		t.Errorf("digest length = %d, want 32 (md5 hex)", len(digest))
	}
}

func TestCache_SetGetDeleteExists(t *testing.T) {
	t.Parallel()

	c := New(64)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("Get on empty cache returned ok=true")
	}

	c.Set(ctx, "k", "v", time.Minute)
	v, ok := c.Get(ctx, "k")
	if !ok || v != "v" {
		t.Fatalf("Get after Set = (%v, %v), want (v, true)", v, ok)
	}

	if !c.Exists(ctx, "k") {
		t.Error("Exists = false after Set")
	}

	if !c.Delete(ctx, "k") {
		t.Error("Delete on present key returned false")
	}
	if c.Delete(ctx, "k") {
		t.Error("Delete on absent key returned true")
	}
	if c.Exists(ctx, "k") {
		t.Error("Exists = true after Delete")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	c := New(64)
	ctx := context.Background()

	c.Set(ctx, "k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get returned ok=true for an expired entry")
	}
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	c := New(64)
	ctx := context.Background()

	c.Set(ctx, "k", "v", 0)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("Get returned ok=false for a zero-TTL (non-expiring) entry")
	}
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := New(64)
	ctx := context.Background()
	c.Set(ctx, "a", 1, 0)
	c.Set(ctx, "b", 2, 0)

	if n := c.Clear(ctx); n != 2 {
		t.Errorf("Clear returned %d, want 2", n)
	}
	if c.Exists(ctx, "a") || c.Exists(ctx, "b") {
		t.Error("entries still present after Clear")
	}
}

func TestCache_GetOrFill_CollapsesConcurrentMisses(t *testing.T) {
	t.Parallel()

	c := New(64)
	ctx := context.Background()

	var calls int64
	fill := func(context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "computed", nil
	}

	results := make(chan any, 8)
	for i := 0; i < 8; i++ {
		go func() {
			v, err := c.GetOrFill(ctx, "k", time.Minute, fill)
			if err != nil {
				t.Error(err)
			}
			results <- v
		}()
	}
	for i := 0; i < 8; i++ {
		if v := <-results; v != "computed" {
			t.Errorf("GetOrFill result = %v, want 'computed'", v)
		}
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("fill called %d times, want 1", got)
	}
}

func TestCache_GetOrFill_PropagatesFillError(t *testing.T) {
	t.Parallel()

	c := New(64)
	ctx := context.Background()
	wantErr := errors.New("fill failed")

	_, err := c.GetOrFill(ctx, "k", time.Minute, func(context.Context) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("GetOrFill error = %v, want %v", err, wantErr)
	}
	if c.Exists(ctx, "k") {
		t.Error("a failed fill must not populate the cache")
	}
}
