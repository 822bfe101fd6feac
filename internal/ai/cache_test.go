package ai

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(90*time.Second, 10)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"))
	now = now.Add(89 * time.Second)
	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("Get() = %q, %v before expiry", v, ok)
	}
	now = now.Add(time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("entry served after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", c.Len())
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache(time.Minute, 2)
	ctx := context.Background()
	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))
	c.Set(ctx, "c", []byte("3"))

	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("oldest entry survived eviction")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := c.Get(ctx, k); !ok {
			t.Fatalf("entry %s missing", k)
		}
	}
}

func TestCacheKeyIsStable(t *testing.T) {
	t.Parallel()

	a, _ := cacheKey("hint", HintRequest{Code: "x", Level: 1})
	b, _ := cacheKey("hint", HintRequest{Code: "x", Level: 1})
	c, _ := cacheKey("hint", HintRequest{Code: "y", Level: 1})
	d, _ := cacheKey("evaluate", HintRequest{Code: "x", Level: 1})
	if a != b || a == c || a == d {
		t.Fatalf("keys: %s %s %s %s", a, b, c, d)
	}
}
