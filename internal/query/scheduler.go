package query

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const maxTaskBackoff = 5 * time.Minute

// Scheduler owns periodic background tasks (interval refetches, session
// checks, cache eviction). Tasks are cancelable individually and Stop
// cancels all of them deterministically, e.g. on logout.
type Scheduler struct {
	logger      *slog.Logger
	minInterval time.Duration

	mu     sync.Mutex
	tasks  map[int]*task
	nextID int
	wg     sync.WaitGroup
}

type task struct {
	name   string
	cancel context.CancelFunc
}

// NewScheduler creates an empty scheduler
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, minInterval: minRefetchInterval, tasks: make(map[int]*task)}
}

// Every runs fn every interval until the returned stop func or Stop is
// called. Consecutive failures stretch the delay exponentially, capped.
// The first run happens after one interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context) error) (stop func()) {
	if interval < s.minInterval {
		interval = s.minInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.tasks[id] = &task{name: name, cancel: cancel}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		failures := 0
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				failures++
				s.logger.Debug("scheduled task failed", "task", name, "failures", failures, "error", err)
			} else {
				failures = 0
			}
			timer.Reset(taskBackoff(failures, interval))
		}
	}()

	s.logger.Debug("scheduled task started", "task", name, "interval", interval)
	return func() { s.cancel(id) }
}

func (s *Scheduler) cancel(id int) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()
	if ok {
		t.cancel()
		s.logger.Debug("scheduled task stopped", "task", t.name)
	}
}

// Len returns the number of running tasks
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every task. It does not wait, so a task may call it (a
// session check that ends the session does). The scheduler can be reused.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[int]*task)
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
	if len(tasks) > 0 {
		s.logger.Info("stopped scheduled tasks", "count", len(tasks))
	}
}

// Wait blocks until every cancelled task goroutine has exited
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// taskBackoff doubles base per consecutive failure, capped at maxTaskBackoff
func taskBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxTaskBackoff {
			return maxTaskBackoff
		}
	}
	return d
}
