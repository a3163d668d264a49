// Package worker consumes match lifecycle events from the dispatcher and
// forwards them to telemetry sinks.
package worker

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/botroyale/gridroyale/internal/cache"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// ErrUnexpectedPayload is returned when an event carries the wrong payload type.
var ErrUnexpectedPayload = errors.New("unexpected event payload")

// PointWriter accepts telemetry points. *influx.Manager implements it.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	// Influx is optional; without it events are only counted and logged.
	Influx PointWriter
	Logger *slog.Logger
}

// Stats are running totals of handled events.
type Stats struct {
	AgentsRegistered int `json:"agentsRegistered"`
	MatchesCreated   int `json:"matchesCreated"`
	TicksResolved    int `json:"ticksResolved"`
	MatchesCompleted int `json:"matchesCompleted"`
}

// Manager owns the event handlers.
type Manager struct {
	deps Dependencies

	agents    cache.SafeCounter
	created   cache.SafeCounter
	ticks     cache.SafeCounter
	completed cache.SafeCounter

	lastWrite atomic.Int64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{deps: deps}
}

// Stats returns the handled event totals.
func (m *Manager) Stats() Stats {
	return Stats{
		AgentsRegistered: m.agents.Value(),
		MatchesCreated:   m.created.Value(),
		TicksResolved:    m.ticks.Value(),
		MatchesCompleted: m.completed.Value(),
	}
}

// GetLastWriteDuration returns how long the last telemetry write took.
func (m *Manager) GetLastWriteDuration() time.Duration {
	return time.Duration(m.lastWrite.Load())
}

func (m *Manager) write(points ...*influxdb2_write.Point) error {
	if m.deps.Influx == nil {
		return nil
	}
	start := time.Now()
	defer func() { m.lastWrite.Store(int64(time.Since(start))) }()

	var errs []error
	for _, p := range points {
		if err := m.deps.Influx.WritePoint(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
