package query

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/handy/internal/domain"
)

var favoriteLists = []Key{
	{"favorites", "list", "service"},
	{"favorites", "list", "all"},
	{"favorites", "list", "provider"},
}

func seedFavorites(c *Cache) {
	c.Write(favoriteLists[0], []string{"svc1", "svc2"})
	c.Write(favoriteLists[1], []string{"prov1", "svc1"})
	c.Write(favoriteLists[2], []string{"prov1"})
}

func removeID(id string) Predictor {
	return Update(func(_ Key, ids []string) ([]string, bool) {
		out := make([]string, 0, len(ids))
		for _, v := range ids {
			if v != id {
				out = append(out, v)
			}
		}
		if len(out) == len(ids) {
			return nil, false
		}
		return out, true
	})
}

func TestSnapshotRestoreFidelity(t *testing.T) {
	c, _ := newTestCache()
	seedFavorites(c)
	c.Invalidate(favoriteLists[2])
	before := readAll(c, favoriteLists)

	snap, n := c.snapshotAndApply([]Key{{"favorites"}}, removeID("svc1"))
	if n != 2 {
		t.Fatalf("predicted %d entries, want 2", n)
	}
	if snap.Len() != 3 {
		t.Fatalf("snapshot has %d entries, want 3", snap.Len())
	}

	snap.Restore(c)
	after := readAll(c, favoriteLists)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("restore is not exact:\nbefore=%+v\n after=%+v", before, after)
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	c, _ := newTestCache()
	seedFavorites(c)
	snap, _ := c.snapshotAndApply([]Key{{"favorites"}}, removeID("svc1"))

	// later writes must not leak into the snapshot
	c.Write(favoriteLists[0], []string{"other"})
	snap.Restore(c)

	e, _ := c.Read(favoriteLists[0])
	if got := e.Data.([]string); !reflect.DeepEqual(got, []string{"svc1", "svc2"}) {
		t.Fatalf("restored %v, want pre-mutation payload", got)
	}
}

func TestExecuteOptimisticRemoveSuccess(t *testing.T) {
	coord := newTestCoordinator(t)
	seedFavorites(coord.Cache())
	engine := NewEngine(coord, coord.logger)

	var during [][]string
	res, err := engine.Execute(context.Background(), Mutation{
		Name:    "favorite.remove",
		Keys:    []Key{{"favorites"}},
		Predict: removeID("svc1"),
		Commit: func(ctx context.Context) (any, error) {
			for _, k := range favoriteLists {
				e, _ := coord.Cache().Read(k)
				during = append(during, e.Data.([]string))
			}
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RolledBack || res.Predicted != 2 || res.ID == "" {
		t.Errorf("result = %+v", res)
	}

	for i, ids := range during {
		for _, id := range ids {
			if id == "svc1" {
				t.Errorf("list %v still had svc1 during commit", favoriteLists[i])
			}
		}
	}
	for _, k := range favoriteLists {
		e, _ := coord.Cache().Read(k)
		if !e.Stale {
			t.Errorf("%v not invalidated on settle", k)
		}
	}
}

func TestExecuteRollbackOnFailure(t *testing.T) {
	coord := newTestCoordinator(t)
	seedFavorites(coord.Cache())
	engine := NewEngine(coord, coord.logger)

	before := readAll(coord.Cache(), favoriteLists)
	commitErr := &domain.APIError{Kind: domain.KindServer, Status: 500}

	var commits atomic.Int32
	res, err := engine.Execute(context.Background(), Mutation{
		Name:    "favorite.remove",
		Keys:    []Key{{"favorites"}},
		Predict: removeID("svc1"),
		Commit: func(ctx context.Context) (any, error) {
			commits.Add(1)
			return nil, commitErr
		},
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("err = %v, want commit error", err)
	}
	if !res.RolledBack {
		t.Error("RolledBack = false")
	}
	if commits.Load() != 1 {
		t.Errorf("commit called %d times, mutations are never retried", commits.Load())
	}

	after := readAll(coord.Cache(), favoriteLists)
	for i := range before {
		if !reflect.DeepEqual(before[i].Data, after[i].Data) {
			t.Errorf("%v data = %v, want %v", favoriteLists[i], after[i].Data, before[i].Data)
		}
		if !after[i].Stale {
			t.Errorf("%v not invalidated on settle", favoriteLists[i])
		}
	}
}

func TestExecuteResetDuringCommitFailure(t *testing.T) {
	coord := newTestCoordinator(t)
	seedFavorites(coord.Cache())
	engine := NewEngine(coord, coord.logger)

	// a 401 during commit tears the session down before Execute resumes
	authErr := &domain.APIError{Kind: domain.KindAuth, Status: 401}
	res, err := engine.Execute(context.Background(), Mutation{
		Name:    "favorite.remove",
		Keys:    []Key{{"favorites"}},
		Predict: removeID("svc1"),
		Commit: func(ctx context.Context) (any, error) {
			coord.Reset()
			return nil, authErr
		},
	})
	if !errors.Is(err, authErr) {
		t.Fatalf("err = %v, want the auth error", err)
	}
	if res.RolledBack {
		t.Error("RolledBack = true after the cache was reset")
	}
	if n := coord.Cache().Len(); n != 0 {
		t.Errorf("cache has %d entries after reset, want 0: %v", n, coord.Cache().Keys(Key{}))
	}
}

func TestExecuteResetDuringCommitSkipsOnSuccess(t *testing.T) {
	coord := newTestCoordinator(t)
	seedFavorites(coord.Cache())
	engine := NewEngine(coord, coord.logger)

	ran := false
	res, err := engine.Execute(context.Background(), Mutation{
		Name: "booking.create",
		Keys: []Key{{"bookings"}},
		Commit: func(ctx context.Context) (any, error) {
			coord.Reset()
			return "b1", nil
		},
		OnSuccess: func(c *Cache, result any) {
			ran = true
			c.Write(Key{"bookings", "detail", "b1"}, result)
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != "b1" {
		t.Errorf("Value = %v, want b1", res.Value)
	}
	if ran {
		t.Error("OnSuccess ran after the cache was reset")
	}
	if n := coord.Cache().Len(); n != 0 {
		t.Errorf("cache has %d entries after reset, want 0", n)
	}
}

func TestSnapshotRestoreAfterClear(t *testing.T) {
	c, _ := newTestCache()
	seedFavorites(c)
	snap, _ := c.snapshotAndApply([]Key{{"favorites"}}, removeID("svc1"))

	c.Clear()
	if keys := snap.Restore(c); keys != nil {
		t.Errorf("Restore after Clear restored %v", keys)
	}
	if c.Len() != 0 {
		t.Errorf("cache has %d entries, want 0", c.Len())
	}
}

func TestPrepareSeesSerializedState(t *testing.T) {
	coord := newTestCoordinator(t)
	seedFavorites(coord.Cache())
	engine := NewEngine(coord, coord.logger)

	inFirst := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := engine.Execute(context.Background(), Mutation{
			Name:    "favorite.remove",
			Keys:    []Key{{"favorites"}},
			Predict: removeID("svc1"),
			Commit: func(ctx context.Context) (any, error) {
				close(inFirst)
				<-release
				return nil, nil
			},
		})
		done <- err
	}()
	<-inFirst

	var seen []string
	second := make(chan error, 1)
	go func() {
		_, err := engine.Execute(context.Background(), Mutation{
			Name: "favorite.remove",
			Keys: []Key{{"favorites"}},
			Prepare: func(c *Cache) {
				seen, _ = Peek[[]string](c, favoriteLists[0])
			},
			Commit: func(ctx context.Context) (any, error) { return nil, nil },
		})
		second <- err
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !reflect.DeepEqual(seen, []string{"svc2"}) {
		t.Errorf("Prepare saw %v, want the first mutation's result [svc2]", seen)
	}
}

func TestExecuteLeavesUndeterminedEntries(t *testing.T) {
	coord := newTestCoordinator(t)
	seedFavorites(coord.Cache())
	engine := NewEngine(coord, coord.logger)

	res, err := engine.Execute(context.Background(), Mutation{
		Name:    "favorite.remove",
		Keys:    []Key{{"favorites"}},
		Predict: removeID("unknown"),
		Commit:  func(ctx context.Context) (any, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Predicted != 0 {
		t.Errorf("Predicted = %d, want 0", res.Predicted)
	}
}

func TestExecuteSerializesOverlappingMutations(t *testing.T) {
	coord := newTestCoordinator(t)
	seedFavorites(coord.Cache())
	engine := NewEngine(coord, coord.logger)

	release := make(chan struct{})
	firstInCommit := make(chan struct{})
	var secondStarted atomic.Bool

	done := make(chan error, 2)
	go func() {
		_, err := engine.Execute(context.Background(), Mutation{
			Name: "first",
			Keys: []Key{{"favorites", "list", "service"}},
			Commit: func(ctx context.Context) (any, error) {
				close(firstInCommit)
				<-release
				return nil, nil
			},
		})
		done <- err
	}()
	<-firstInCommit

	go func() {
		_, err := engine.Execute(context.Background(), Mutation{
			Name: "second",
			Keys: []Key{{"favorites", "list", "provider"}},
			Commit: func(ctx context.Context) (any, error) {
				secondStarted.Store(true)
				return nil, nil
			},
		})
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	if secondStarted.Load() {
		t.Fatal("overlapping mutation ran while the first was in flight")
	}
	close(release)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if !secondStarted.Load() {
		t.Fatal("second mutation never ran")
	}
}

func TestExecuteLockHonorsContext(t *testing.T) {
	coord := newTestCoordinator(t)
	engine := NewEngine(coord, coord.logger)

	release := make(chan struct{})
	inCommit := make(chan struct{})
	go engine.Execute(context.Background(), Mutation{
		Name: "slow",
		Keys: []Key{{"addresses"}},
		Commit: func(ctx context.Context) (any, error) {
			close(inCommit)
			<-release
			return nil, nil
		},
	})
	<-inCommit
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := engine.Execute(ctx, Mutation{
		Name:   "queued",
		Keys:   []Key{{"addresses"}},
		Commit: func(ctx context.Context) (any, error) { return nil, nil },
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestMutationDropsInFlightFetch(t *testing.T) {
	coord := newTestCoordinator(t)
	key := favoriteLists[0]
	coord.Cache().Write(key, []string{"svc1"})
	coord.Invalidate(key)
	engine := NewEngine(coord, coord.logger)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			<-release
			return []string{"svc1", "from-server"}, nil
		}
		return []string{"refetched"}, nil
	}
	go coord.EnsureFresh(context.Background(), key, fetch, fastPolicy())
	waitFor(t, "fetch in flight", func() bool { return calls.Load() == 1 })

	_, err := engine.Execute(context.Background(), Mutation{
		Name:    "favorite.remove",
		Keys:    []Key{{"favorites"}},
		Predict: removeID("svc1"),
		Commit: func(ctx context.Context) (any, error) {
			close(release)
			time.Sleep(10 * time.Millisecond)
			e, _ := coord.Cache().Read(key)
			if ids := e.Data.([]string); len(ids) != 0 {
				return nil, errors.New("late read clobbered the optimistic write")
			}
			return nil, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDedupePrefixes(t *testing.T) {
	got := dedupePrefixes([]Key{
		{"favorites", "list", "service"},
		{"favorites"},
		{"bookings", "detail", "b1"},
		{"favorites"},
	})
	want := []Key{{"favorites"}, {"bookings", "detail", "b1"}}
	if len(got) != len(want) {
		t.Fatalf("dedupePrefixes = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("dedupePrefixes = %v, want %v", got, want)
		}
	}
}
