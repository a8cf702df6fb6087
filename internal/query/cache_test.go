package query

import (
	"context"
	"reflect"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache() (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewCache(WithClock(clock.now), WithWindows(time.Minute, 5*time.Minute)), clock
}

func TestCacheWriteRead(t *testing.T) {
	c, clock := newTestCache()
	key := Key{"services", "list"}

	if _, ok := c.Read(key); ok {
		t.Fatal("Read on empty cache returned an entry")
	}

	c.Write(key, []string{"a"})
	e, ok := c.Read(key)
	if !ok {
		t.Fatal("Read after Write returned nothing")
	}
	if e.Status != StatusSuccess || !e.HasData || e.Stale {
		t.Fatalf("entry = %+v, want success with data", e)
	}
	if !e.FetchedAt.Equal(clock.t) || !e.FreshUntil.Equal(clock.t.Add(time.Minute)) {
		t.Errorf("FetchedAt/FreshUntil = %v/%v", e.FetchedAt, e.FreshUntil)
	}
	if !e.Fresh(clock.t) {
		t.Error("entry should be fresh right after write")
	}
	clock.advance(2 * time.Minute)
	if e.Fresh(clock.t) {
		t.Error("entry should not be fresh after the stale window")
	}
}

func TestCacheInvalidatePrefix(t *testing.T) {
	c, _ := newTestCache()
	c.Write(Key{"favorites", "list", "service"}, []string{"svc1"})
	c.Write(Key{"favorites", "list", "provider"}, []string{"prov1"})
	c.Write(Key{"bookings", "list"}, []string{"b1"})

	got := c.Invalidate(Key{"favorites"})
	if len(got) != 2 {
		t.Fatalf("Invalidate matched %d keys, want 2", len(got))
	}

	for _, k := range []Key{{"favorites", "list", "service"}, {"favorites", "list", "provider"}} {
		e, _ := c.Read(k)
		if !e.Stale {
			t.Errorf("%v not stale", k)
		}
		if !e.HasData {
			t.Errorf("%v lost its data on invalidate", k)
		}
	}
	if e, _ := c.Read(Key{"bookings", "list"}); e.Stale {
		t.Error("unrelated key was invalidated")
	}
}

func TestCacheInvalidateIdempotent(t *testing.T) {
	c, _ := newTestCache()
	keys := []Key{{"favorites", "list", "service"}, {"favorites", "list", "provider"}}
	for _, k := range keys {
		c.Write(k, []string{"x"})
	}

	var notified int
	c.Observe(func(Key, Entry) { notified++ })

	c.Invalidate(Key{"favorites"})
	once := readAll(c, keys)
	afterFirst := notified

	c.Invalidate(Key{"favorites"})
	twice := readAll(c, keys)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second invalidation changed state:\n once=%+v\ntwice=%+v", once, twice)
	}
	if notified != afterFirst {
		t.Errorf("second invalidation notified %d more observers", notified-afterFirst)
	}
}

func TestCacheInvalidateHook(t *testing.T) {
	c, _ := newTestCache()
	var got []Key
	c.setInvalidateHook(func(keys []Key) { got = keys })

	c.Write(Key{"notifications", "list"}, 1)
	c.Write(Key{"notifications", "unread"}, 2)
	c.subscribe(Key{"notifications", "unread"})

	c.Invalidate(Key{"notifications"})
	if len(got) != 1 || !got[0].Equal(Key{"notifications", "unread"}) {
		t.Fatalf("hook got %v, want only the subscribed key", got)
	}
}

func TestCacheSweep(t *testing.T) {
	c, clock := newTestCache()
	c.Write(Key{"a"}, 1)
	c.Write(Key{"b"}, 2)
	c.subscribe(Key{"b"})

	clock.advance(4 * time.Minute)
	if n := c.Sweep(clock.t); n != 0 {
		t.Fatalf("Sweep before retention window purged %d", n)
	}

	clock.advance(2 * time.Minute)
	if n := c.Sweep(clock.t); n != 1 {
		t.Fatalf("Sweep purged %d, want 1", n)
	}
	if _, ok := c.Read(Key{"b"}); !ok {
		t.Error("subscribed entry was evicted")
	}

	// retention starts when the last subscriber leaves
	c.unsubscribe(Key{"b"})
	clock.advance(4 * time.Minute)
	if n := c.Sweep(clock.t); n != 0 {
		t.Fatalf("Sweep purged %d inside retention window", n)
	}
	clock.advance(2 * time.Minute)
	if n := c.Sweep(clock.t); n != 1 {
		t.Fatalf("Sweep purged %d after retention window, want 1", n)
	}
}

func TestCacheStaleFetchStaysStale(t *testing.T) {
	c, _ := newTestCache()
	key := Key{"addresses"}
	c.register(key, nopFetch, DefaultPolicy())

	gen, _, _, _, _ := c.fetchState(key)
	seq, ok := c.beginFetch(key, gen, nil)
	if !ok {
		t.Fatal("beginFetch refused")
	}
	// invalidated while the request was on the wire
	c.Invalidate(key)

	e, applied := c.finishFetch(key, seq, "old", nil)
	if !applied {
		t.Fatal("result should be applied")
	}
	if !e.Stale {
		t.Error("entry fetched before invalidation must remain stale")
	}
}

func TestCacheWriteSupersedesFlight(t *testing.T) {
	c, _ := newTestCache()
	key := Key{"addresses"}
	c.register(key, nopFetch, DefaultPolicy())

	gen, _, _, _, _ := c.fetchState(key)
	seq, _ := c.beginFetch(key, gen, nil)
	c.Write(key, "written")

	if _, applied := c.finishFetch(key, seq, "late", nil); applied {
		t.Fatal("late fetch result was applied over a write")
	}
	if e, _ := c.Read(key); e.Data != "written" {
		t.Errorf("Data = %v, want written", e.Data)
	}
}

func readAll(c *Cache, keys []Key) []Entry {
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i], _ = c.Read(k)
	}
	return out
}

func nopFetch(context.Context) (any, error) { return nil, nil }
