package cache

import (
	"testing"
	"time"
)

func TestGetMissOnAbsentKey(t *testing.T) {
	c := New(10)
	if _, ok := c.Get("nope"); ok {
		t.Error("expected miss")
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	c := New(10)
	key := Key("h1:22:root", "echo hello", "full")
	c.Put(key, "h1:22:root", "hello\n", Dynamic, time.Minute)

	v, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if v.(string) != "hello\n" {
		t.Errorf("got %q", v)
	}
}

func TestGetExpiredIsMiss(t *testing.T) {
	c := New(10)
	key := Key("h1:22:root", "echo hello", "full")
	c.Put(key, "h1:22:root", "hello\n", Dynamic, time.Nanosecond)
	time.Sleep(time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestInvalidateByHost(t *testing.T) {
	c := New(10)
	k1 := Key("h1:22:root", "echo a", "full")
	k2 := Key("h2:22:root", "echo b", "full")
	c.Put(k1, "h1:22:root", "a", Dynamic, time.Minute)
	c.Put(k2, "h2:22:root", "b", Dynamic, time.Minute)

	c.Invalidate("h1:22:root")

	if _, ok := c.Get(k1); ok {
		t.Error("expected h1 entry invalidated")
	}
	if _, ok := c.Get(k2); !ok {
		t.Error("expected h2 entry to survive")
	}
}

func TestEvictionPrefersDynamicOverStatic(t *testing.T) {
	c := New(2)
	staticKey := Key("h1", "static-cmd", "full")
	c.Put(staticKey, "h1", "static-val", Static, time.Minute)

	dyn1 := Key("h1", "dyn-1", "full")
	c.Put(dyn1, "h1", "dyn-1-val", Dynamic, time.Minute)

	// Cache is now at capacity (2). Inserting a third entry must evict the
	// LRU dynamic entry, not the static one.
	dyn2 := Key("h1", "dyn-2", "full")
	c.Put(dyn2, "h1", "dyn-2-val", Dynamic, time.Minute)

	if _, ok := c.Get(staticKey); !ok {
		t.Error("static entry should survive dynamic eviction")
	}
	if _, ok := c.Get(dyn1); ok {
		t.Error("expected LRU dynamic entry to be evicted")
	}
	if _, ok := c.Get(dyn2); !ok {
		t.Error("expected newest dynamic entry to survive")
	}
}
