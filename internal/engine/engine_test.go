package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/config"
	"github.com/botroyale/gridroyale/internal/dispatcher"
	"github.com/botroyale/gridroyale/internal/rating"
	"github.com/botroyale/gridroyale/internal/royale"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/internal/storage/memory"
	"github.com/botroyale/gridroyale/internal/storage/storagetest"
	"github.com/botroyale/gridroyale/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []dispatcher.Event
}

func (r *recordingEmitter) Emit(e dispatcher.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingEmitter) ofType(typ string) []dispatcher.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dispatcher.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type staticDirectory map[string]string

func (d staticDirectory) Names(_ context.Context, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = d[id]
	}
	return out
}

type fixture struct {
	engine *Engine
	store  *memory.Backend
	clock  *fakeClock
	events *recordingEmitter
}

func newFixture(t *testing.T, rules royale.Rules, agents ...string) *fixture {
	t.Helper()
	store := memory.New(config.MemoryConfig{})
	require.NoError(t, store.Init())
	names := staticDirectory{}
	for _, id := range agents {
		require.NoError(t, store.CreateAgent(context.Background(), storagetest.Agent(id)))
		names[id] = "bot-" + id
	}

	clock := &fakeClock{now: t0}
	events := &recordingEmitter{}
	n := 0
	e, err := New(Dependencies{
		Store:     store,
		Rules:     rules,
		Rating:    rating.FixedDelta{Win: 25, Loss: -10},
		Rand:      royale.NewRand(7),
		Directory: names,
		Events:    events,
		Now:       clock.Now,
		NewID: func() string {
			n++
			return fmt.Sprintf("match-%d", n)
		},
	})
	require.NoError(t, err)
	return &fixture{engine: e, store: store, clock: clock, events: events}
}

func stay() core.Action {
	return core.Action{Move: core.Stay}
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(Dependencies{Rules: royale.DefaultRules()})
	assert.Error(t, err)

	bad := royale.DefaultRules()
	bad.GridSize = 2
	_, err = New(Dependencies{Store: memory.New(config.MemoryConfig{}), Rules: bad})
	assert.Error(t, err)
}

func TestCreateMatch(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b")
	ctx := context.Background()

	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, "match-1", m.ID)
	assert.Equal(t, core.MatchActive, m.Status)
	assert.Equal(t, 1, m.Tick)
	assert.Equal(t, core.Zone{Min: 0, Max: 14}, m.Zone)
	assert.Equal(t, core.Position{X: 1, Y: 1}, m.PlayerStates[0].Pos)
	assert.Equal(t, core.Position{X: 13, Y: 13}, m.PlayerStates[1].Pos)
	assert.True(t, m.TickStartedAt.Equal(t0))

	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stored.Players)

	active, err := f.store.ActiveMatchFor(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, m.ID, active.ID)

	assert.Len(t, f.events.ofType(core.TopicMatchCreated), 1)
}

func TestCreateMatch_RejectsBadLobby(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a")

	_, err := f.engine.CreateMatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, apierr.ErrBadRequest)
}

func TestSubmitAction_Preconditions(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b", "c", "x")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	up := core.Direction("up")
	stayShot := core.Stay
	tests := []struct {
		name    string
		agent   string
		match   string
		action  core.Action
		wantErr error
	}{
		{"unknown match", "a", "ghost", stay(), apierr.ErrMatchNotFound},
		{"not a participant", "x", m.ID, stay(), apierr.ErrNotAParticipant},
		{"invalid move", "a", m.ID, core.Action{Move: "up"}, apierr.ErrInvalidMove},
		{"empty move", "a", m.ID, core.Action{}, apierr.ErrInvalidMove},
		{"invalid shoot", "a", m.ID, core.Action{Move: core.Stay, Shoot: &up}, apierr.ErrInvalidShootDirection},
		{"shoot stay", "a", m.ID, core.Action{Move: core.Stay, Shoot: &stayShot}, apierr.ErrInvalidShootDirection},
		{"non participant checked before move", "x", m.ID, core.Action{Move: "up"}, apierr.ErrNotAParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.SubmitAction(ctx, tt.agent, tt.match, tt.action)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	res, err := f.engine.SubmitAction(ctx, "a", m.ID, stay())
	require.NoError(t, err)
	assert.Equal(t, SubmitResult{Accepted: true, TickResolved: false, Tick: 1}, res)

	_, err = f.engine.SubmitAction(ctx, "a", m.ID, core.Action{Move: core.North})
	assert.ErrorIs(t, err, apierr.ErrDuplicateSubmission)

	// Rejected submissions leave the pending set untouched.
	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, stored.PendingIDs())
	assert.Equal(t, core.Stay, stored.PendingActions["a"].Move)
}

func TestSubmitAction_EliminatedAndInactive(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b", "c")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	require.NoError(t, f.store.WithMatchLock(ctx, m.ID, func(_ storage.MatchTx, cur *core.Match) error {
		cur.PlayerStates[2].Alive = false
		cur.PlayerStates[2].HP = 0
		cur.PlayerStates[2].Placement = 3
		return nil
	}))
	_, err = f.engine.SubmitAction(ctx, "c", m.ID, stay())
	assert.ErrorIs(t, err, apierr.ErrAlreadyEliminated)

	require.NoError(t, f.store.WithMatchLock(ctx, m.ID, func(_ storage.MatchTx, cur *core.Match) error {
		cur.Status = core.MatchWaiting
		return nil
	}))
	_, err = f.engine.SubmitAction(ctx, "c", m.ID, stay())
	assert.ErrorIs(t, err, apierr.ErrMatchNotActive)
	_, err = f.engine.ForceResolve(ctx, m.ID)
	assert.ErrorIs(t, err, apierr.ErrMatchNotActive)
}

func TestSubmitAction_ResolvesWhenAllSubmitted(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	f.clock.Set(t0.Add(time.Second))
	res, err := f.engine.SubmitAction(ctx, "a", m.ID, core.Action{Move: core.North, Reasoning: "up"})
	require.NoError(t, err)
	assert.False(t, res.TickResolved)

	res, err = f.engine.SubmitAction(ctx, "b", m.ID, stay())
	require.NoError(t, err)
	assert.Equal(t, SubmitResult{Accepted: true, TickResolved: true, Tick: 2}, res)

	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Tick)
	assert.Empty(t, stored.PendingActions)
	assert.Equal(t, core.Position{X: 1, Y: 2}, stored.PlayerStates[0].Pos)
	assert.True(t, stored.TickStartedAt.Equal(t0.Add(time.Second)))
	require.Len(t, stored.LastTickEvents, 1)
	assert.Equal(t, core.EventMove, stored.LastTickEvents[0].Type)

	frames, err := f.store.Frames(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 1, frames[0].Tick)

	resolved := f.events.ofType(core.TopicTickResolved)
	require.Len(t, resolved, 1)
	frame, ok := resolved[0].Payload.(core.TickFrame)
	require.True(t, ok)
	assert.Equal(t, m.ID, frame.MatchID)
	assert.Greater(t, f.engine.LastResolveDuration(), time.Duration(0))
}

func TestSubmitAction_ConcurrentSubmissionsResolveOnce(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	f := newFixture(t, royale.DefaultRules(), ids...)
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, ids)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		resolved int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := f.engine.SubmitAction(ctx, id, m.ID, stay())
			if err != nil {
				t.Errorf("submit %s: %v", id, err)
				return
			}
			if res.TickResolved {
				mu.Lock()
				resolved++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, resolved)
	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Tick)
	assert.Empty(t, stored.PendingActions)
	assert.Len(t, f.events.ofType(core.TopicTickResolved), 1)
}

func TestForceResolve_TimesOutMissingAgents(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	_, err = f.engine.SubmitAction(ctx, "a", m.ID, stay())
	require.NoError(t, err)

	res, err := f.engine.ForceResolve(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, ResolveResult{Resolved: true, Tick: 2}, res)

	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.PlayerStates[0].Timeouts)
	assert.Equal(t, 1, stored.PlayerStates[1].Timeouts)

	var timeouts []core.TickEvent
	for _, e := range stored.LastTickEvents {
		if e.Type == core.EventTimeout {
			timeouts = append(timeouts, e)
		}
	}
	require.Len(t, timeouts, 1)
	assert.Equal(t, "b", timeouts[0].AgentID)

	_, err = f.engine.ForceResolve(ctx, "ghost")
	assert.ErrorIs(t, err, apierr.ErrMatchNotFound)
}

func TestResolveStale(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b", "c", "d")
	ctx := context.Background()
	m1, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	f.clock.Set(t0.Add(2 * time.Second))
	m2, err := f.engine.CreateMatch(ctx, []string{"c", "d"})
	require.NoError(t, err)

	n, err := f.engine.ResolveStale(ctx, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Set(t0.Add(3 * time.Second))
	n, err = f.engine.ResolveStale(ctx, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got1, err := f.store.GetMatch(ctx, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got1.Tick)
	assert.True(t, got1.TickStartedAt.Equal(t0.Add(3*time.Second)))

	got2, err := f.store.GetMatch(ctx, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got2.Tick)

	// A fresh tick is not stale again at the same instant.
	n, err = f.engine.ResolveStale(ctx, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResolveStale_SkipsTickCompletedByAgents(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	// Agents complete tick 1 at t0+3s, just before the scheduler fires.
	f.clock.Set(t0.Add(3 * time.Second))
	_, err = f.engine.SubmitAction(ctx, "a", m.ID, stay())
	require.NoError(t, err)
	_, err = f.engine.SubmitAction(ctx, "b", m.ID, stay())
	require.NoError(t, err)

	n, err := f.engine.ResolveStale(ctx, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Tick)
}

func TestCompletionAppliesRatingsAndReleasesPlayers(t *testing.T) {
	rules := royale.DefaultRules()
	rules.MaxTicks = 1
	f := newFixture(t, rules, "a", "b")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	_, err = f.engine.SubmitAction(ctx, "a", m.ID, stay())
	require.NoError(t, err)
	res, err := f.engine.SubmitAction(ctx, "b", m.ID, stay())
	require.NoError(t, err)
	assert.True(t, res.TickResolved)

	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MatchCompleted, stored.Status)
	assert.Equal(t, "a", stored.WinnerID)
	require.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.Placements, 2)
	assert.Equal(t, core.Placement{AgentID: "a", Placement: 1, TicksSurvived: 1}, stored.Placements[0])
	assert.Equal(t, core.Placement{AgentID: "b", Placement: 2, TicksSurvived: 1}, stored.Placements[1])

	a, err := f.store.GetAgent(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1025, a.Rating)
	assert.Equal(t, 1, a.Wins)
	assert.Equal(t, 1, a.Matches)
	assert.Equal(t, 0, a.Deaths)

	b, err := f.store.GetAgent(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 990, b.Rating)
	assert.Equal(t, 1, b.Losses)
	assert.Equal(t, 1, b.Matches)

	completed := f.events.ofType(core.TopicMatchCompleted)
	require.Len(t, completed, 1)
	result, ok := completed[0].Payload.(core.MatchResult)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"a": 25, "b": -10}, result.RatingDeltas)

	_, err = f.store.ActiveMatchFor(ctx, "a")
	assert.Error(t, err)

	_, err = f.engine.SubmitAction(ctx, "a", m.ID, stay())
	assert.ErrorIs(t, err, apierr.ErrMatchNotActive)

	force, err := f.engine.ForceResolve(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, force.Resolved)
	assert.True(t, force.Completed)
	assert.Equal(t, 2, force.Tick)
}

func TestCompletion_DeathsCountedForEliminated(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	// Line b up in a's firing lane with one hit point left.
	require.NoError(t, f.store.WithMatchLock(ctx, m.ID, func(_ storage.MatchTx, cur *core.Match) error {
		cur.PlayerStates[0].Pos = core.Position{X: 5, Y: 5}
		cur.PlayerStates[1].Pos = core.Position{X: 5, Y: 8}
		cur.PlayerStates[1].HP = 1
		return nil
	}))

	north := core.North
	_, err = f.engine.SubmitAction(ctx, "a", m.ID, core.Action{Move: core.Stay, Shoot: &north})
	require.NoError(t, err)
	_, err = f.engine.SubmitAction(ctx, "b", m.ID, stay())
	require.NoError(t, err)

	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MatchCompleted, stored.Status)
	assert.Equal(t, "a", stored.WinnerID)

	a, err := f.store.GetAgent(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Kills)
	b, err := f.store.GetAgent(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Deaths)
}
