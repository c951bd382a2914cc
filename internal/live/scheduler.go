package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs the periodic and signal-driven work of one live session. Every task
// gets its own goroutine so a slow store write in one never delays another.
// Stop cancels all tasks and waits for them; no task body runs after Stop returns.
type Scheduler struct {
	logger *zap.Logger
	tasks  []task
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	name     string
	interval time.Duration
	signal   <-chan struct{}
	fn       func(ctx context.Context)
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Every registers fn to run at a fixed interval. Must be called before Start.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) {
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
}

// OnSignal registers fn to run on each receive from ch. A closed channel runs fn once.
func (s *Scheduler) OnSignal(name string, ch <-chan struct{}, fn func(ctx context.Context)) {
	s.tasks = append(s.tasks, task{name: name, signal: ch, fn: fn})
}

// Start launches all registered tasks. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.run(ctx, t)
	}
	s.logger.Debug("scheduler started", zap.Int("tasks", len(s.tasks)))
}

// Stop cancels every task and blocks until all have returned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Debug("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, t task) {
	defer s.wg.Done()
	if t.signal != nil {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-t.signal:
				if ctx.Err() != nil {
					return
				}
				t.fn(ctx)
				if !ok {
					return
				}
			}
		}
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			t.fn(ctx)
		}
	}
}
