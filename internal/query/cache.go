package query

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status is the fetch state of a cache entry
type Status string

const (
	StatusIdle     Status = "idle"
	StatusFetching Status = "fetching"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
)

// Default windows used when an entry has no registered policy
const (
	DefaultStaleTime = 30 * time.Second
	DefaultGCTime    = 5 * time.Minute
)

// Entry is a point-in-time copy of one cached collection.
// Data is the last known-good payload and survives failed refetches.
type Entry struct {
	Key         Key
	Data        any
	HasData     bool
	FetchedAt   time.Time
	FreshUntil  time.Time
	EvictAfter  time.Time
	Status      Status
	Stale       bool
	Err         error
	Subscribers int
}

// Fresh reports whether the entry can be served without refetching
func (e Entry) Fresh(now time.Time) bool {
	return e.HasData && !e.Stale && e.Status == StatusSuccess && now.Before(e.FreshUntil)
}

// FetchFunc loads the payload for one key
type FetchFunc func(ctx context.Context) (any, error)

// Observer is called after an entry changes
type Observer func(key Key, entry Entry)

type flight struct {
	seq    uint64
	cancel context.CancelFunc
}

type entry struct {
	Entry
	segs []string

	lastAccess time.Time
	// gen advances on every write that must supersede in-flight fetches
	gen uint64
	// invalidatedAt is the cache sequence number of the last invalidation
	invalidatedAt uint64
	prevStatus    Status
	flight        *flight
	holds         int

	fetch  FetchFunc
	policy Policy
	hasPol bool
}

func (e *entry) snapshot() Entry {
	out := e.Entry
	out.Key = append(Key(nil), e.Key...)
	return out
}

// Cache holds one entry per key. It never performs network calls; the
// Coordinator and Engine are the only writers besides explicit Write.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	seq       uint64
	epoch     uint64 // advances on every Clear
	now       func() time.Time
	staleTime time.Duration
	gcTime    time.Duration

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int

	onInvalidate func(keys []Key)
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithWindows sets the freshness and retention windows for entries
// that have no registered policy
func WithWindows(stale, gc time.Duration) CacheOption {
	return func(c *Cache) {
		c.staleTime = stale
		c.gcTime = gc
	}
}

// NewCache creates an empty cache
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:   make(map[string]*entry),
		now:       time.Now,
		staleTime: DefaultStaleTime,
		gcTime:    DefaultGCTime,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the cache clock
func (c *Cache) Now() time.Time { return c.now() }

// Observe registers fn for change notifications and returns an unregister func
func (c *Cache) Observe(fn Observer) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()
	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Cache) notify(changed []Entry) {
	if len(changed) == 0 {
		return
	}
	c.obsMu.RLock()
	fns := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.RUnlock()
	for _, e := range changed {
		for _, fn := range fns {
			fn(e.Key, e)
		}
	}
}

func (c *Cache) setInvalidateHook(fn func(keys []Key)) {
	c.mu.Lock()
	c.onInvalidate = fn
	c.mu.Unlock()
}

// ensure returns the entry for key, creating an idle one. Caller holds mu.
func (c *Cache) ensure(key Key) *entry {
	id := key.String()
	if e, ok := c.entries[id]; ok {
		return e
	}
	now := c.now()
	e := &entry{
		Entry: Entry{
			Key:        append(Key(nil), key...),
			Status:     StatusIdle,
			EvictAfter: now.Add(c.gcTime),
		},
		segs:       key.segments(),
		lastAccess: now,
	}
	c.entries[id] = e
	return e
}

func (c *Cache) windows(e *entry) (stale, gc time.Duration) {
	if e.hasPol {
		return e.policy.StaleTime, e.policy.GCTime
	}
	return c.staleTime, c.gcTime
}

// touch records an access and pushes back eviction. Caller holds mu.
func (c *Cache) touch(e *entry, now time.Time) {
	e.lastAccess = now
	if e.Subscribers == 0 {
		_, gc := c.windows(e)
		e.EvictAfter = now.Add(gc)
	}
}

// Read returns a copy of the entry for key
func (c *Cache) Read(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return Entry{}, false
	}
	c.touch(e, c.now())
	return e.snapshot(), true
}

// Write replaces the payload of key as a successful fetch would
func (c *Cache) Write(key Key, data any) Entry {
	c.mu.Lock()
	e := c.ensure(key)
	c.cancelFlight(e)
	e.gen++
	c.applySuccess(e, data, true)
	out := e.snapshot()
	c.mu.Unlock()
	c.notify([]Entry{out})
	return out
}

// applySuccess stores data as fetched now. Caller holds mu.
func (c *Cache) applySuccess(e *entry, data any, clearStale bool) {
	now := c.now()
	stale, _ := c.windows(e)
	e.Data = data
	e.HasData = true
	e.FetchedAt = now
	e.FreshUntil = now.Add(stale)
	e.Status = StatusSuccess
	e.Err = nil
	if clearStale {
		e.Stale = false
	}
	c.touch(e, now)
}

// cancelFlight detaches any in-flight fetch so its result is dropped.
// Caller holds mu.
func (c *Cache) cancelFlight(e *entry) {
	if e.flight == nil {
		return
	}
	if e.flight.cancel != nil {
		e.flight.cancel()
	}
	e.flight = nil
	e.Status = e.prevStatus
	e.gen++
}

// Invalidate marks every entry under prefix stale. Data is kept so readers
// see the previous payload while the refetch runs. Returns the matched keys.
func (c *Cache) Invalidate(prefix Key) []Key {
	segs := prefix.segments()

	c.mu.Lock()
	var matched []Key
	var subscribed []Key
	var changed []Entry
	for _, e := range c.entries {
		if !hasPrefixSegs(e.segs, segs) {
			continue
		}
		matched = append(matched, e.snapshot().Key)
		// Already stale: state is unchanged. A flight in progress either
		// began after the last invalidation or is followed up when it lands,
		// so only an idle subscribed entry is asked to refetch.
		if e.Stale {
			if e.flight == nil && e.Subscribers > 0 {
				subscribed = append(subscribed, e.snapshot().Key)
			}
			continue
		}
		c.seq++
		e.invalidatedAt = c.seq
		e.Stale = true
		changed = append(changed, e.snapshot())
		if e.Subscribers > 0 {
			subscribed = append(subscribed, e.snapshot().Key)
		}
	}
	hook := c.onInvalidate
	c.mu.Unlock()

	sortKeys(matched)
	c.notify(changed)
	if hook != nil && len(subscribed) > 0 {
		sortKeys(subscribed)
		hook(subscribed)
	}
	return matched
}

// Keys returns every cached key under prefix
func (c *Cache) Keys(prefix Key) []Key {
	segs := prefix.segments()
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Key
	for _, e := range c.entries {
		if hasPrefixSegs(e.segs, segs) {
			out = append(out, e.snapshot().Key)
		}
	}
	sortKeys(out)
	return out
}

// Sweep purges entries that have no subscribers and whose retention window
// elapsed. Returns the number of purged entries.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if e.Subscribers > 0 || e.flight != nil || e.holds > 0 {
			continue
		}
		if now.After(e.EvictAfter) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Clear drops every entry and cancels in-flight fetches. Snapshots taken
// before the call can no longer be restored.
func (c *Cache) Clear() {
	c.mu.Lock()
	for _, e := range c.entries {
		c.cancelFlight(e)
	}
	c.entries = make(map[string]*entry)
	c.epoch++
	c.mu.Unlock()
}

// Epoch identifies the cache contents between two calls to Clear
func (c *Cache) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Len returns the number of entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// === Coordinator hooks ===

// register records the fetcher and policy used to refetch key
func (c *Cache) register(key Key, fetch FetchFunc, p Policy) {
	c.mu.Lock()
	e := c.ensure(key)
	e.fetch = fetch
	e.policy = p
	e.hasPol = true
	c.mu.Unlock()
}

// fetchState returns what the coordinator needs to start a fetch. gen and
// inv together identify the data a flight would produce.
func (c *Cache) fetchState(key Key) (gen, inv uint64, fetch FetchFunc, p Policy, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, found := c.entries[key.String()]
	if !found || e.fetch == nil {
		return 0, 0, nil, Policy{}, false
	}
	return e.gen, e.invalidatedAt, e.fetch, e.policy, true
}

// beginFetch marks key as fetching for generation gen. It fails when the
// generation moved on or a mutation holds the key.
func (c *Cache) beginFetch(key Key, gen uint64, cancel context.CancelFunc) (uint64, bool) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok || e.gen != gen || e.holds > 0 {
		c.mu.Unlock()
		return 0, false
	}
	c.seq++
	seq := c.seq
	if e.flight == nil {
		e.prevStatus = e.Status
	} else if e.flight.cancel != nil {
		// the older flight predates an invalidation; only the newest may commit
		e.flight.cancel()
	}
	e.flight = &flight{seq: seq, cancel: cancel}
	e.Status = StatusFetching
	out := e.snapshot()
	c.mu.Unlock()
	c.notify([]Entry{out})
	return seq, true
}

// finishFetch commits a fetch result. Results of cancelled or superseded
// flights are dropped and applied=false is returned with the current entry.
func (c *Cache) finishFetch(key Key, seq uint64, data any, err error) (Entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok {
		c.mu.Unlock()
		return Entry{Key: key, Status: StatusIdle}, false
	}
	if e.flight == nil || e.flight.seq != seq || e.holds > 0 {
		out := e.snapshot()
		c.mu.Unlock()
		return out, false
	}
	e.flight = nil
	if err != nil {
		e.Status = StatusError
		e.Err = err
	} else {
		// A fetch that began before the latest invalidation may carry
		// pre-invalidation state, so the entry stays stale.
		c.applySuccess(e, data, seq > e.invalidatedAt)
	}
	out := e.snapshot()
	c.mu.Unlock()
	c.notify([]Entry{out})
	return out, true
}

// cancelFetches aborts in-flight fetches under prefix
func (c *Cache) cancelFetches(prefix Key) int {
	segs := prefix.segments()
	c.mu.Lock()
	n := 0
	var changed []Entry
	for _, e := range c.entries {
		if hasPrefixSegs(e.segs, segs) && e.flight != nil {
			c.cancelFlight(e)
			changed = append(changed, e.snapshot())
			n++
		}
	}
	c.mu.Unlock()
	c.notify(changed)
	return n
}

// subscribe attaches a subscriber to key
func (c *Cache) subscribe(key Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.ensure(key)
	e.Subscribers++
	e.EvictAfter = time.Time{}
	e.lastAccess = c.now()
	return e.snapshot()
}

// unsubscribe detaches a subscriber; the retention window starts when the
// last one leaves
func (c *Cache) unsubscribe(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || e.Subscribers == 0 {
		return
	}
	e.Subscribers--
	if e.Subscribers == 0 {
		now := c.now()
		_, gc := c.windows(e)
		e.EvictAfter = now.Add(gc)
	}
}

// subscribedKeys returns keys with at least one subscriber
func (c *Cache) subscribedKeys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Key
	for _, e := range c.entries {
		if e.Subscribers > 0 {
			out = append(out, e.snapshot().Key)
		}
	}
	sortKeys(out)
	return out
}

func (c *Cache) policyOf(key Key) (Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasPol {
		return Policy{}, false
	}
	return e.policy, true
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}
