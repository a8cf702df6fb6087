package query

import (
	"sort"
	"time"
)

// Predictor computes the optimistic value for one cached entry.
// Returning ok=false leaves the entry untouched: use it whenever the
// effect on that entry cannot be determined client-side. Predictors must
// return new values and never modify data in place.
type Predictor func(key Key, data any) (next any, ok bool)

// Snapshot is an immutable copy of every entry a mutation may touch,
// taken before the optimistic write.
type Snapshot struct {
	entries []Entry
	takenAt time.Time
	epoch   uint64
}

// Entries returns the captured entries
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of captured entries
func (s Snapshot) Len() int { return len(s.entries) }

// Restore writes every captured entry back verbatim and supersedes any
// fetch that started after the snapshot. Subscriber counts are live state
// and are left as they are. Nothing is restored once the cache was cleared
// after the snapshot; nil is returned then.
func (s Snapshot) Restore(c *Cache) []Key {
	c.mu.Lock()
	if c.epoch != s.epoch {
		c.mu.Unlock()
		return nil
	}
	var changed []Entry
	keys := make([]Key, 0, len(s.entries))
	for _, saved := range s.entries {
		e := c.ensure(saved.Key)
		c.cancelFlight(e)
		e.gen++
		e.Data = saved.Data
		e.HasData = saved.HasData
		e.FetchedAt = saved.FetchedAt
		e.FreshUntil = saved.FreshUntil
		e.Status = saved.Status
		e.Stale = saved.Stale
		e.Err = saved.Err
		changed = append(changed, e.snapshot())
		keys = append(keys, saved.Key)
	}
	c.mu.Unlock()
	c.notify(changed)
	return keys
}

// hold blocks fetch commits for every existing entry under prefixes and
// aborts their in-flight fetches. The returned func releases the hold.
func (c *Cache) hold(prefixes []Key) func() {
	sets := make([][]string, len(prefixes))
	for i, p := range prefixes {
		sets[i] = p.segments()
	}
	c.mu.Lock()
	var held []*entry
	var changed []Entry
	for _, e := range c.entries {
		if !matchesAny(e.segs, sets) {
			continue
		}
		if e.flight != nil {
			c.cancelFlight(e)
			changed = append(changed, e.snapshot())
		}
		e.holds++
		held = append(held, e)
	}
	c.mu.Unlock()
	c.notify(changed)

	return func() {
		c.mu.Lock()
		for _, e := range held {
			if e.holds > 0 {
				e.holds--
			}
		}
		c.mu.Unlock()
	}
}

// snapshotAndApply captures every entry under prefixes and applies predict
// to each, under one lock so no write can land between the two.
func (c *Cache) snapshotAndApply(prefixes []Key, predict Predictor) (Snapshot, int) {
	sets := make([][]string, len(prefixes))
	for i, p := range prefixes {
		sets[i] = p.segments()
	}

	c.mu.Lock()
	snap := Snapshot{takenAt: c.now(), epoch: c.epoch}
	var changed []Entry
	for _, e := range c.entries {
		if !matchesAny(e.segs, sets) {
			continue
		}
		snap.entries = append(snap.entries, e.snapshot())
		if predict == nil || !e.HasData {
			continue
		}
		next, ok := predict(e.snapshot().Key, e.Data)
		if !ok {
			continue
		}
		c.cancelFlight(e)
		e.gen++
		e.Data = next
		changed = append(changed, e.snapshot())
	}
	c.mu.Unlock()

	sort.Slice(snap.entries, func(i, j int) bool {
		return snap.entries[i].Key.String() < snap.entries[j].Key.String()
	})
	c.notify(changed)
	return snap, len(changed)
}

func matchesAny(segs []string, sets [][]string) bool {
	for _, p := range sets {
		if hasPrefixSegs(segs, p) {
			return true
		}
	}
	return false
}
