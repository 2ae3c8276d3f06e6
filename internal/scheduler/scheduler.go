// Package scheduler runs named periodic jobs. Rescheduling a name replaces its job.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	period time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns one ticker goroutine per named job
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*entry
	stopped bool
}

// New creates an empty scheduler
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.Named("scheduler"),
		jobs:   make(map[string]*entry),
	}
}

// Schedule runs job every period under name. An existing job with the same name and
// period keeps its timer; a different period replaces it.
func (s *Scheduler) Schedule(name string, period time.Duration, job func(ctx context.Context)) error {
	if period <= 0 {
		return fmt.Errorf("schedule %s: period must be positive, got %v", name, period)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("schedule %s: scheduler stopped", name)
	}

	if existing, ok := s.jobs[name]; ok {
		if existing.period == period {
			return nil
		}
		existing.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{period: period, cancel: cancel, done: make(chan struct{})}
	s.jobs[name] = e
	go s.run(ctx, name, e, job)

	s.logger.Info("job scheduled", zap.String("job", name), zap.Duration("period", period))
	return nil
}

// Clear cancels the named job. It reports whether the job existed.
func (s *Scheduler) Clear(name string) bool {
	s.mu.Lock()
	e, ok := s.jobs[name]
	delete(s.jobs, name)
	s.mu.Unlock()

	if ok {
		e.cancel()
		s.logger.Info("job cleared", zap.String("job", name))
	}
	return ok
}

// Period returns the period of the named job
func (s *Scheduler) Period(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return 0, false
	}
	return e.period, true
}

// Active lists scheduled job names in order
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop cancels every job and waits for runs in progress to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	entries := make([]*entry, 0, len(s.jobs))
	for name, e := range s.jobs {
		e.cancel()
		entries = append(entries, e)
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	for _, e := range entries {
		<-e.done
	}
}

func (s *Scheduler) run(ctx context.Context, name string, e *entry, job func(ctx context.Context)) {
	defer close(e.done)

	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, name, job)
		}
	}
}

// runOnce keeps a panicking job from killing its ticker
func (s *Scheduler) runOnce(ctx context.Context, name string, job func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	job(ctx)
	s.logger.Debug("job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}
