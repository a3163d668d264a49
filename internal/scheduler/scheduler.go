// Package scheduler periodically force-resolves ticks whose action window
// has expired.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often stale ticks are looked for.
const DefaultInterval = time.Second

// Resolver resolves every tick that went stale before now.
type Resolver interface {
	ResolveStale(ctx context.Context, now time.Time) (int, error)
}

// Dependencies holds all dependencies for the scheduler
type Dependencies struct {
	Resolver Resolver
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service runs the resolve loop.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	resolved  int
}

// NewService creates a new scheduler service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the resolve loop is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Resolved returns the number of ticks the scheduler has forced so far.
func (s *Service) Resolved() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolved
}

// RunOnce resolves every stale tick as of now.
func (s *Service) RunOnce(ctx context.Context) {
	n, err := s.deps.Resolver.ResolveStale(ctx, s.deps.Now())
	if err != nil {
		s.deps.Logger.Error("Error resolving stale ticks", "error", err)
	}
	if n > 0 {
		s.mu.Lock()
		s.resolved += n
		s.mu.Unlock()
		s.deps.Logger.Debug("Forced stale ticks", "count", n)
	}
}

// Start starts the resolve loop. The loop ends on Stop or when ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			if s.stopChan == stop {
				s.isRunning = false
			}
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("Starting scheduler", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop stops the resolve loop and waits for an in-flight pass to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
