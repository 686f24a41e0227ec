package scheduler

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs a background task at a fixed interval. Besides the ticker, the task
// can be requested out of band with Trigger; triggers arriving while a run is pending
// are collapsed into that run.
type Scheduler struct {
	interval time.Duration
	task     func(context.Context)
	trigger  chan struct{}

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	lastRun time.Time
}

// New creates a new Scheduler instance
func New(interval time.Duration, task func(context.Context)) *Scheduler {
	return &Scheduler{
		interval: interval,
		task:     task,
		trigger:  make(chan struct{}, 1),
	}
}

// Start begins executing the task at the specified interval
func (s *Scheduler) Start(ctx context.Context, firstRunImmediately bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if firstRunImmediately {
			s.run(ctx)
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.run(ctx)
			case <-s.trigger:
				s.run(ctx)
				ticker.Reset(s.interval)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) run(ctx context.Context) {
	s.task(ctx)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
}

// Trigger asks for a run as soon as possible and restarts the interval after it.
// A trigger sent while stopped is held for the next Start.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop terminates the periodic task execution
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	// run() takes the lock, so wait outside of it
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.trigger:
	default:
	}
}

// IsRunning returns true if the task is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns when the task last finished, zero if it never ran
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
