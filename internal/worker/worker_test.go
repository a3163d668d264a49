package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/botroyale/gridroyale/internal/dispatcher"
	"github.com/botroyale/gridroyale/internal/influx"
	"github.com/botroyale/gridroyale/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) {}
func (l *mockLogger) Info(msg string, keysAndValues ...any)  {}
func (l *mockLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

// mockWriter records written points.
type mockWriter struct {
	mu     sync.Mutex
	points []*influxdb2_write.Point
	err    error
}

func (w *mockWriter) WritePoint(p *influxdb2_write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.points = append(w.points, p)
	return nil
}

func (w *mockWriter) names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.points))
	for _, p := range w.points {
		out = append(out, p.Name())
	}
	return out
}

func newDispatcher(t *testing.T) (*dispatcher.Dispatcher, *mockLogger) {
	t.Helper()
	log := &mockLogger{}
	d, err := dispatcher.New(log)
	require.NoError(t, err)
	return d, log
}

func completedResult() core.MatchResult {
	done := time.Date(2026, 4, 1, 10, 5, 0, 0, time.UTC)
	return core.MatchResult{
		Match: core.Match{
			ID:          "m1",
			Status:      core.MatchCompleted,
			WinnerID:    "a",
			Tick:        12,
			CompletedAt: &done,
			Placements: []core.Placement{
				{AgentID: "a", Placement: 1, Kills: 1, TicksSurvived: 11},
				{AgentID: "b", Placement: 2, TicksSurvived: 8},
			},
		},
		RatingDeltas: map[string]int{"a": 25, "b": -10},
	}
}

func TestRegisterHandlers(t *testing.T) {
	d, _ := newDispatcher(t)
	m := NewManager(Dependencies{})
	m.RegisterHandlers(d)
	defer d.Close()

	for _, topic := range []string{
		core.TopicAgentRegistered,
		core.TopicMatchCreated,
		core.TopicTickResolved,
		core.TopicMatchCompleted,
	} {
		assert.True(t, d.HasHandler(topic), topic)
	}
}

func TestLifecycleEventsWritePoints(t *testing.T) {
	d, log := newDispatcher(t)
	w := &mockWriter{}
	m := NewManager(Dependencies{Influx: w})
	m.RegisterHandlers(d)

	d.Emit(dispatcher.Event{Type: core.TopicAgentRegistered, Payload: core.Agent{ID: "a", Name: "alpha"}})
	d.Emit(dispatcher.Event{Type: core.TopicMatchCreated, MatchID: "m1", Payload: core.Match{ID: "m1", Players: []string{"a", "b"}}})
	d.Emit(dispatcher.Event{Type: core.TopicTickResolved, MatchID: "m1", Payload: core.TickFrame{MatchID: "m1", Tick: 1}})
	d.Emit(dispatcher.Event{Type: core.TopicTickResolved, MatchID: "m1", Payload: core.TickFrame{MatchID: "m1", Tick: 2}})
	d.Emit(dispatcher.Event{Type: core.TopicMatchCompleted, MatchID: "m1", Payload: completedResult()})
	d.Close()

	assert.Empty(t, log.errors)
	assert.Equal(t, Stats{AgentsRegistered: 1, MatchesCreated: 1, TicksResolved: 2, MatchesCompleted: 1}, m.Stats())

	names := w.names()
	assert.Len(t, names, 5)
	assert.ElementsMatch(t, []string{
		influx.MeasurementMatchCreated,
		influx.MeasurementTick,
		influx.MeasurementTick,
		influx.MeasurementPlacement,
		influx.MeasurementPlacement,
	}, names)
}

func TestHandlersWithoutInflux(t *testing.T) {
	m := NewManager(Dependencies{})

	_, err := m.handleTickResolved(dispatcher.Event{Type: core.TopicTickResolved, Payload: core.TickFrame{MatchID: "m1"}})
	require.NoError(t, err)
	_, err = m.handleMatchCompleted(dispatcher.Event{Type: core.TopicMatchCompleted, Payload: completedResult()})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Stats().TicksResolved)
	assert.Equal(t, time.Duration(0), m.GetLastWriteDuration())
}

func TestUnexpectedPayload(t *testing.T) {
	m := NewManager(Dependencies{})

	_, err := m.handleMatchCreated(dispatcher.Event{Type: core.TopicMatchCreated, Payload: &core.Match{}})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
	_, err = m.handleTickResolved(dispatcher.Event{Type: core.TopicTickResolved, Payload: "frame"})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
	_, err = m.handleMatchCompleted(dispatcher.Event{Type: core.TopicMatchCompleted})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
	_, err = m.handleAgentRegistered(dispatcher.Event{Type: core.TopicAgentRegistered, Payload: 42})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)

	assert.Equal(t, Stats{}, m.Stats())
}

func TestWriteErrorIsReported(t *testing.T) {
	d, log := newDispatcher(t)
	w := &mockWriter{err: errors.New("backup writer not available")}
	m := NewManager(Dependencies{Influx: w})
	m.RegisterHandlers(d)

	d.Emit(dispatcher.Event{Type: core.TopicMatchCompleted, MatchID: "m1", Payload: completedResult()})
	d.Close()

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Equal(t, []string{"event failed"}, log.errors)
	assert.Equal(t, 1, m.Stats().MatchesCompleted)
}
