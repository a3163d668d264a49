// Package monitor reports server health: queue depth, active matches and
// resolution timings. It periodically writes the status to a file.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/botroyale/gridroyale/internal/engine"
	"github.com/botroyale/gridroyale/internal/worker"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 5 * time.Second

// QueueReader reports the matchmaking queue depth.
type QueueReader interface {
	Len() int
}

// MatchReader reports engine state.
type MatchReader interface {
	ListActive(ctx context.Context) ([]engine.MatchSummary, error)
	LastResolveDuration() time.Duration
}

// ResolveCounter reports how many stale ticks were force-resolved.
type ResolveCounter interface {
	Resolved() int
}

// EventStats reports background event handling totals.
type EventStats interface {
	Stats() worker.Stats
	GetLastWriteDuration() time.Duration
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Queue     QueueReader
	Matches   MatchReader
	Scheduler ResolveCounter
	Worker    EventStats
	// StatusFile is optional; the loop only refreshes the log context without it.
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Status is a point-in-time view of the server.
type Status struct {
	Time                  time.Time     `json:"time"`
	Uptime                string        `json:"uptime"`
	QueueDepth            int           `json:"queueDepth"`
	ActiveMatches         int           `json:"activeMatches"`
	LastResolveDurationMs float64       `json:"lastResolveDurationMs"`
	StaleResolved         int           `json:"staleResolved"`
	Events                *worker.Stats `json:"events,omitempty"`
	LastWriteDurationMs   float64       `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps    Dependencies
	started time.Time

	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}

	lastMu sync.RWMutex
	last   Status
}

// NewService creates a new monitor service
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
	return &Service{
		deps:     deps,
		started:  deps.Now(),
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// GetStatus collects the current status. A failure to list matches is
// returned alongside the partial status.
func (s *Service) GetStatus(ctx context.Context) (Status, error) {
	now := s.deps.Now()
	st := Status{
		Time:   now.UTC(),
		Uptime: now.Sub(s.started).Round(time.Second).String(),
	}
	if s.deps.Queue != nil {
		st.QueueDepth = s.deps.Queue.Len()
	}
	if s.deps.Scheduler != nil {
		st.StaleResolved = s.deps.Scheduler.Resolved()
	}
	if s.deps.Worker != nil {
		stats := s.deps.Worker.Stats()
		st.Events = &stats
		st.LastWriteDurationMs = millis(s.deps.Worker.GetLastWriteDuration())
	}

	var err error
	if s.deps.Matches != nil {
		st.LastResolveDurationMs = millis(s.deps.Matches.LastResolveDuration())
		var active []engine.MatchSummary
		active, err = s.deps.Matches.ListActive(ctx)
		if err != nil {
			err = fmt.Errorf("failed to list active matches: %w", err)
		}
		st.ActiveMatches = len(active)
	}

	s.lastMu.Lock()
	s.last = st
	s.lastMu.Unlock()
	return st, err
}

// LogContext returns attributes from the most recent status for log records.
func (s *Service) LogContext() []slog.Attr {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return []slog.Attr{
		slog.Int("queueDepth", s.last.QueueDepth),
		slog.Int("activeMatches", s.last.ActiveMatches),
	}
}

// WriteStatusFile writes st as indented JSON, replacing the file atomically.
func (s *Service) WriteStatusFile(st Status) error {
	if s.deps.StatusFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	dir := filepath.Dir(s.deps.StatusFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("failed to create status file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.deps.StatusFile)
}

func (s *Service) refresh(ctx context.Context) {
	st, err := s.GetStatus(ctx)
	if err != nil {
		s.deps.Logger.Error("Error collecting status", "error", err)
	}
	if err := s.WriteStatusFile(st); err != nil {
		s.deps.Logger.Error("Error writing status file", "path", s.deps.StatusFile, "error", err)
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
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

		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval, "statusFile", s.deps.StatusFile)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		s.refresh(ctx)
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the loop to exit.
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
