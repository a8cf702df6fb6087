package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Mutation describes one state-changing call and its optimistic effect
type Mutation struct {
	// Name identifies the mutation in logs
	Name string
	// Keys are the prefixes whose entries the optimistic write may touch.
	// They are snapshotted and held for the whole mutation.
	Keys []Key
	// Prepare runs once the mutation holds its keys and before the
	// snapshot, so state read here cannot change until the mutation settles
	Prepare func(c *Cache)
	// Predict computes the optimistic value per entry; nil skips Apply
	Predict Predictor
	// Commit performs the remote call. It is never retried.
	Commit func(ctx context.Context) (any, error)
	// Invalidate lists the prefixes refreshed on settle; defaults to Keys
	Invalidate []Key
	// OnSuccess runs with the commit result before settle, e.g. to seed a
	// detail entry with the server's response. It is skipped when the cache
	// was reset during the commit.
	OnSuccess func(c *Cache, result any)
}

// Result reports what a mutation did
type Result struct {
	ID         string
	Value      any
	Predicted  int
	RolledBack bool
}

// Engine executes mutations with snapshot, optimistic apply, rollback and
// settle. Mutations sharing a root key segment run one at a time.
type Engine struct {
	coord  *Coordinator
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewEngine creates a mutation engine writing into coord's cache
func NewEngine(coord *Coordinator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{coord: coord, logger: logger, locks: make(map[string]chan struct{})}
}

// Execute runs m. On commit failure every entry under m.Keys is restored
// to its pre-mutation state and the commit error is returned unchanged.
// Either way the invalidation set is refreshed exactly once. A commit that
// outlives a cache reset leaves the emptied cache alone.
func (e *Engine) Execute(ctx context.Context, m Mutation) (Result, error) {
	res := Result{ID: uuid.NewString()}
	if m.Commit == nil {
		return res, fmt.Errorf("mutation %s: no commit", m.Name)
	}
	invalidate := m.Invalidate
	if len(invalidate) == 0 {
		invalidate = m.Keys
	}

	unlock, err := e.lock(ctx, roots(m.Keys, invalidate))
	if err != nil {
		return res, err
	}
	defer unlock()

	cache := e.coord.Cache()
	release := cache.hold(m.Keys)
	if m.Prepare != nil {
		m.Prepare(cache)
	}
	snap, n := cache.snapshotAndApply(m.Keys, m.Predict)
	res.Predicted = n
	e.logger.Debug("mutation applied", "mutation", m.Name, "id", res.ID, "snapshot", snap.Len(), "predicted", n)

	value, err := m.Commit(ctx)
	if cache.Epoch() != snap.epoch {
		release()
		e.logger.Info("mutation settled after cache reset", "mutation", m.Name, "id", res.ID, "error", err)
		if err != nil {
			return res, err
		}
		res.Value = value
		return res, nil
	}
	if err != nil {
		res.RolledBack = snap.Restore(cache) != nil
		release()
		e.settle(invalidate)
		e.logger.Warn("mutation failed", "mutation", m.Name, "id", res.ID, "error", err)
		return res, err
	}

	res.Value = value
	if m.OnSuccess != nil {
		m.OnSuccess(cache, value)
	}
	release()
	e.settle(invalidate)
	e.logger.Info("mutation committed", "mutation", m.Name, "id", res.ID)
	return res, nil
}

func (e *Engine) settle(prefixes []Key) {
	for _, p := range dedupePrefixes(prefixes) {
		e.coord.Invalidate(p)
	}
}

// lock acquires the per-root semaphores in sorted order
func (e *Engine) lock(ctx context.Context, names []string) (func(), error) {
	var held []chan struct{}
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, name := range names {
		sem := e.sem(name)
		select {
		case sem <- struct{}{}:
			held = append(held, sem)
		case <-ctx.Done():
			unlock()
			return nil, ctx.Err()
		}
	}
	return unlock, nil
}

func (e *Engine) sem(name string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.locks[name]
	if !ok {
		s = make(chan struct{}, 1)
		e.locks[name] = s
	}
	return s
}

// roots returns the sorted, distinct root segments of every key
func roots(sets ...[]Key) []string {
	seen := make(map[string]bool)
	var out []string
	for _, keys := range sets {
		for _, k := range keys {
			r := k.Root()
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	sort.Strings(out)
	return out
}

// dedupePrefixes drops prefixes covered by a shorter one in the same set
func dedupePrefixes(prefixes []Key) []Key {
	var out []Key
	for i, p := range prefixes {
		covered := false
		for j, q := range prefixes {
			if i == j {
				continue
			}
			if p.HasPrefix(q) && (len(q) < len(p) || j < i) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}

// Update returns a Predictor that applies fn to payloads of type T and
// leaves every other entry untouched
func Update[T any](fn func(key Key, v T) (T, bool)) Predictor {
	return func(key Key, data any) (any, bool) {
		v, ok := data.(T)
		if !ok {
			return nil, false
		}
		return fn(key, v)
	}
}
