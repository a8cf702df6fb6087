package query

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mmcdole/handy/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ErrCancelled is returned to callers whose fetch was aborted or superseded
// before its result could be applied
var ErrCancelled = errors.New("fetch cancelled")

// DefaultRequestTimeout is the per-attempt budget. Cold-starting backends
// can take tens of seconds; expiry is reported as a retryable network error.
const DefaultRequestTimeout = 30 * time.Second

// maxFollow bounds how many superseding flights a waiter follows
const maxFollow = 3

// Coordinator drives reads into the Cache: one in-flight request per key,
// bounded retries, subscriptions and background revalidation.
type Coordinator struct {
	cache   *Cache
	sched   *Scheduler
	group   singleflight.Group
	logger  *slog.Logger
	timeout time.Duration

	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	pollMu sync.Mutex
	polls  map[string]*poll
}

type poll struct {
	refs int
	stop func()
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithRequestTimeout sets the per-attempt budget
func WithRequestTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithScheduler shares a scheduler for interval polling
func WithScheduler(s *Scheduler) CoordinatorOption {
	return func(c *Coordinator) { c.sched = s }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator creates a coordinator over cache and hooks itself up as
// the cache's invalidation listener
func NewCoordinator(cache *Cache, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cache:   cache,
		logger:  slog.Default(),
		timeout: DefaultRequestTimeout,
		polls:   make(map[string]*poll),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sched == nil {
		c.sched = NewScheduler(c.logger)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	cache.setInvalidateHook(c.refetchKeys)
	return c
}

// Cache returns the underlying cache
func (c *Coordinator) Cache() *Cache { return c.cache }

// Scheduler returns the scheduler used for polling
func (c *Coordinator) Scheduler() *Scheduler { return c.sched }

func (c *Coordinator) baseContext() context.Context {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	return c.ctx
}

// EnsureFresh returns the entry for key, fetching it when it is missing,
// stale or expired. Concurrent callers share one request. On failure the
// returned entry still carries the last known-good data.
func (c *Coordinator) EnsureFresh(ctx context.Context, key Key, fetch FetchFunc, p Policy) (Entry, error) {
	p = p.normalized()
	c.cache.register(key, fetch, p)
	if e, ok := c.cache.Read(key); ok && e.Fresh(c.cache.Now()) {
		return e, nil
	}
	return c.await(ctx, key)
}

// Fetch forces a request for key regardless of freshness, still sharing
// any request already in flight
func (c *Coordinator) Fetch(ctx context.Context, key Key, fetch FetchFunc, p Policy) (Entry, error) {
	c.cache.register(key, fetch, p.normalized())
	return c.await(ctx, key)
}

func (c *Coordinator) await(ctx context.Context, key Key) (Entry, error) {
	for i := 0; ; i++ {
		ch, ok := c.start(key)
		if !ok {
			e, _ := c.cache.Read(key)
			return e, ErrCancelled
		}
		select {
		case res := <-ch:
			e, _ := res.Val.(Entry)
			// The flight was superseded; follow the one that replaced it.
			if errors.Is(res.Err, ErrCancelled) && i+1 < maxFollow && ctx.Err() == nil {
				continue
			}
			return e, res.Err
		case <-ctx.Done():
			e, _ := c.cache.Read(key)
			return e, ctx.Err()
		}
	}
}

func (c *Coordinator) start(key Key) (<-chan singleflight.Result, bool) {
	gen, inv, fetch, p, ok := c.cache.fetchState(key)
	if !ok {
		return nil, false
	}
	id := key.String() + "#" + strconv.FormatUint(gen, 10) + "." + strconv.FormatUint(inv, 10)
	return c.group.DoChan(id, func() (any, error) {
		return c.run(key, gen, fetch, p)
	}), true
}

func (c *Coordinator) run(key Key, gen uint64, fetch FetchFunc, p Policy) (any, error) {
	ctx, cancel := context.WithCancel(c.baseContext())
	defer cancel()

	seq, ok := c.cache.beginFetch(key, gen, cancel)
	if !ok {
		e, _ := c.cache.Read(key)
		return e, ErrCancelled
	}

	data, err := c.attempt(ctx, key, fetch, p)

	entry, applied := c.cache.finishFetch(key, seq, data, err)
	if !applied {
		c.logger.Debug("dropped superseded fetch result", "key", key.String())
		return entry, ErrCancelled
	}
	if err != nil {
		c.logger.Warn("fetch failed", "key", key.String(), "kind", domain.KindOf(err).String(), "error", err)
		return entry, err
	}
	c.logger.Debug("fetched", "key", key.String())
	if entry.Stale && entry.Subscribers > 0 {
		go c.refetch(key)
	}
	return entry, nil
}

// attempt calls fetch with per-attempt timeouts, retrying network failures
// with exponential backoff
func (c *Coordinator) attempt(ctx context.Context, key Key, fetch FetchFunc, p Policy) (any, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.RetryDelay
	b.MaxInterval = maxRetryDelay

	op := func() (any, error) {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		data, err := fetch(actx)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if errors.Is(actx.Err(), context.DeadlineExceeded) && !domain.IsRetryable(err) {
			err = &domain.APIError{Kind: domain.KindNetwork, Message: "request timed out", Err: err}
		}
		if !domain.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.Retry+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("retrying fetch", "key", key.String(), "in", next, "error", err)
		}),
	)
}

// refetch revalidates key in the background
func (c *Coordinator) refetch(key Key) {
	if _, err := c.await(c.baseContext(), key); err != nil && !errors.Is(err, ErrCancelled) {
		c.logger.Debug("background refetch failed", "key", key.String(), "error", err)
	}
}

func (c *Coordinator) refetchKeys(keys []Key) {
	for _, k := range keys {
		go c.refetch(k)
	}
}

// Cancel aborts in-flight fetches under prefix. Their responses, if they
// still arrive, are ignored.
func (c *Coordinator) Cancel(prefix Key) int {
	n := c.cache.cancelFetches(prefix)
	if n > 0 {
		c.logger.Debug("cancelled fetches", "prefix", prefix.String(), "count", n)
	}
	return n
}

// Invalidate marks the subtree stale; subscribed keys refetch
func (c *Coordinator) Invalidate(prefix Key) []Key {
	keys := c.cache.Invalidate(prefix)
	c.logger.Debug("invalidated", "prefix", prefix.String(), "count", len(keys))
	return keys
}

// Refresh is the explicit user-initiated refresh trigger
func (c *Coordinator) Refresh(prefix Key) []Key {
	return c.Invalidate(prefix)
}

// Trigger revalidates every subscribed, non-fresh key whose policy opts in
// to t. Returns the number of refetches started.
func (c *Coordinator) Trigger(t Trigger) int {
	now := c.cache.Now()
	n := 0
	for _, k := range c.cache.subscribedKeys() {
		p, ok := c.cache.policyOf(k)
		if !ok || !p.wants(t) {
			continue
		}
		if e, ok := c.cache.Read(k); ok && e.Fresh(now) {
			continue
		}
		go c.refetch(k)
		n++
	}
	c.logger.Debug("revalidation trigger", "trigger", t.String(), "refetches", n)
	return n
}

// Subscribe attaches a subscriber to key. The key is fetched on mount when
// it has no data (or is not fresh and the policy refetches on mount) and
// polled while subscribed when the policy has an interval. The returned
// func detaches; the retention window starts when the last subscriber leaves.
func (c *Coordinator) Subscribe(key Key, fetch FetchFunc, p Policy) func() {
	p = p.normalized()
	c.cache.register(key, fetch, p)
	e := c.cache.subscribe(key)
	if !e.HasData || (p.RefetchOnMount && !e.Fresh(c.cache.Now())) {
		go c.refetch(key)
	}
	if p.RefetchInterval > 0 {
		c.startPolling(key, p.RefetchInterval)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if p.RefetchInterval > 0 {
				c.stopPolling(key)
			}
			c.cache.unsubscribe(key)
		})
	}
}

func (c *Coordinator) startPolling(key Key, interval time.Duration) {
	id := key.String()
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if p, ok := c.polls[id]; ok {
		p.refs++
		return
	}
	stop := c.sched.Every("poll "+id, interval, func(ctx context.Context) error {
		_, err := c.await(ctx, key)
		if errors.Is(err, ErrCancelled) {
			return nil
		}
		return err
	})
	c.polls[id] = &poll{refs: 1, stop: stop}
}

func (c *Coordinator) stopPolling(key Key) {
	id := key.String()
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	p, ok := c.polls[id]
	if !ok {
		return
	}
	p.refs--
	if p.refs <= 0 {
		p.stop()
		delete(c.polls, id)
	}
}

// StartMaintenance schedules periodic eviction of unused entries
func (c *Coordinator) StartMaintenance(interval time.Duration) func() {
	return c.sched.Every("cache-gc", interval, func(ctx context.Context) error {
		if n := c.cache.Sweep(c.cache.Now()); n > 0 {
			c.logger.Debug("evicted cache entries", "count", n)
		}
		return nil
	})
}

// Reset aborts every in-flight request, stops polling and empties the
// cache. Used on session teardown.
func (c *Coordinator) Reset() {
	c.ctxMu.Lock()
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.ctxMu.Unlock()

	c.pollMu.Lock()
	for id, p := range c.polls {
		p.stop()
		delete(c.polls, id)
	}
	c.pollMu.Unlock()

	c.cache.Clear()
	c.logger.Info("query cache reset")
}

// Get ensures key is fresh and returns its payload. When the fetch fails
// the last known-good payload is returned together with the error.
func Get[T any](ctx context.Context, c *Coordinator, key Key, p Policy, fetch func(ctx context.Context) (T, error)) (T, error) {
	e, err := c.EnsureFresh(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, p)
	v, _ := e.Data.(T)
	if err != nil && errors.Is(err, ErrCancelled) && e.HasData {
		return v, nil
	}
	return v, err
}

// Peek returns the cached payload for key without fetching
func Peek[T any](c *Cache, key Key) (T, bool) {
	e, ok := c.Read(key)
	if !ok || !e.HasData {
		var zero T
		return zero, false
	}
	v, ok := e.Data.(T)
	return v, ok
}
