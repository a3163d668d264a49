// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, initialised store.
type Factory func(t *testing.T) storage.Store

// Run exercises the full Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("AgentLifecycle", func(t *testing.T) { testAgentLifecycle(t, newStore(t)) })
	t.Run("AgentUniqueness", func(t *testing.T) { testAgentUniqueness(t, newStore(t)) })
	t.Run("TopAgents", func(t *testing.T) { testTopAgents(t, newStore(t)) })
	t.Run("MatchLifecycle", func(t *testing.T) { testMatchLifecycle(t, newStore(t)) })
	t.Run("LockCommits", func(t *testing.T) { testLockCommits(t, newStore(t)) })
	t.Run("LockRollsBack", func(t *testing.T) { testLockRollsBack(t, newStore(t)) })
	t.Run("LockUnknownMatch", func(t *testing.T) { testLockUnknownMatch(t, newStore(t)) })
	t.Run("LockSerialises", func(t *testing.T) { testLockSerialises(t, newStore(t)) })
	t.Run("CompletionReleasesPlayers", func(t *testing.T) { testCompletionReleasesPlayers(t, newStore(t)) })
}

// Agent builds a test agent with a derived name and token.
func Agent(id string) *core.Agent {
	return &core.Agent{
		ID:         id,
		Name:       "bot-" + id,
		Token:      "br_token_" + id,
		Rating:     core.DefaultRating,
		Metadata:   map[string]string{"owner": id},
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		LastActive: time.Unix(1700000000, 0).UTC(),
	}
}

// Match builds an active two-player match at tick 1.
func Match(id string, players ...string) *core.Match {
	states := make([]core.PlayerState, len(players))
	for i, p := range players {
		states[i] = core.PlayerState{AgentID: p, Pos: core.Position{X: i, Y: i}, HP: 3, Alive: true}
	}
	now := time.Unix(1700000000, 0).UTC()
	return &core.Match{
		ID:             id,
		Status:         core.MatchActive,
		Players:        players,
		GridSize:       15,
		Tick:           1,
		MaxTicks:       100,
		Zone:           core.Zone{Min: 0, Max: 14},
		PlayerStates:   states,
		PendingActions: map[string]core.Action{},
		LastTickEvents: []core.TickEvent{},
		CreatedAt:      now,
		StartedAt:      now,
		TickStartedAt:  now,
	}
}

func seedAgents(t *testing.T, s storage.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.CreateAgent(context.Background(), Agent(id)))
	}
}

func testAgentLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedAgents(t, s, "a1")

	got, err := s.GetAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "bot-a1", got.Name)
	assert.Equal(t, core.DefaultRating, got.Rating)
	assert.Equal(t, "a1", got.Metadata["owner"])

	byToken, err := s.GetAgentByToken(ctx, "br_token_a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", byToken.ID)

	require.NoError(t, s.UpdateAgent(ctx, "a1", func(a *core.Agent) error {
		a.Verified = true
		a.Name = "renamed"
		return nil
	}))
	got, err = s.GetAgent(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "bot-a1", got.Name, "identity fields are immutable")

	_, err = s.GetAgent(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetAgentByToken(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateAgent(ctx, "missing", func(*core.Agent) error { return nil }), storage.ErrNotFound)
}

func testAgentUniqueness(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedAgents(t, s, "a1")

	dupName := Agent("a2")
	dupName.Name = "bot-a1"
	assert.ErrorIs(t, s.CreateAgent(ctx, dupName), storage.ErrConflict)

	dupToken := Agent("a3")
	dupToken.Token = "br_token_a1"
	assert.ErrorIs(t, s.CreateAgent(ctx, dupToken), storage.ErrConflict)
}

func testTopAgents(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedAgents(t, s, "a", "b", "c")
	require.NoError(t, s.UpdateAgent(ctx, "b", func(a *core.Agent) error { a.Rating = 1100; return nil }))
	require.NoError(t, s.UpdateAgent(ctx, "c", func(a *core.Agent) error { a.Rating = 900; return nil }))

	top, err := s.TopAgents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, "a", top[1].ID)

	all, err := s.TopAgents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testMatchLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedAgents(t, s, "a", "b")
	m := Match("m1", "a", "b")
	require.NoError(t, s.CreateMatch(ctx, m))
	assert.ErrorIs(t, s.CreateMatch(ctx, m), storage.ErrConflict)

	got, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, m.Players, got.Players)
	assert.Equal(t, m.PlayerStates, got.PlayerStates)
	assert.Equal(t, m.Zone, got.Zone)
	assert.Equal(t, 1, got.Tick)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))

	active, err := s.ActiveMatchFor(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "m1", active.ID)

	_, err = s.ActiveMatchFor(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListMatches(ctx, core.MatchActive)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "m1", list[0].ID)

	list, err = s.ListMatches(ctx, core.MatchCompleted)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetMatch(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testLockCommits(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedAgents(t, s, "a", "b")
	require.NoError(t, s.CreateMatch(ctx, Match("m1", "a", "b")))

	shoot := core.East
	err := s.WithMatchLock(ctx, "m1", func(tx storage.MatchTx, m *core.Match) error {
		m.PendingActions["a"] = core.Action{Move: core.North, Shoot: &shoot, Reasoning: "go"}
		m.Tick = 2
		m.LastTickEvents = []core.TickEvent{{Type: core.EventMove, AgentID: "a", To: &core.Position{X: 1, Y: 2}}}

		agent, err := tx.GetAgent("a")
		if err != nil {
			return err
		}
		if agent.Rating != core.DefaultRating {
			return fmt.Errorf("unexpected rating %d", agent.Rating)
		}
		if err := tx.UpdateAgent("a", func(a *core.Agent) error { a.Kills += 2; return nil }); err != nil {
			return err
		}
		return tx.AppendFrame(&core.TickFrame{MatchID: "m1", Tick: 1, Zone: m.Zone, Players: m.PlayerStates, Events: m.LastTickEvents})
	})
	require.NoError(t, err)

	got, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Tick)
	require.Contains(t, got.PendingActions, "a")
	assert.Equal(t, core.North, got.PendingActions["a"].Move)
	assert.Equal(t, core.East, *got.PendingActions["a"].Shoot)
	require.Len(t, got.LastTickEvents, 1)
	assert.Equal(t, core.Position{X: 1, Y: 2}, *got.LastTickEvents[0].To)

	agent, err := s.GetAgent(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, agent.Kills)

	frames, err := s.Frames(ctx, "m1", 10)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 1, frames[0].Tick)
}

func testLockRollsBack(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedAgents(t, s, "a", "b")
	require.NoError(t, s.CreateMatch(ctx, Match("m1", "a", "b")))

	boom := errors.New("boom")
	err := s.WithMatchLock(ctx, "m1", func(tx storage.MatchTx, m *core.Match) error {
		m.Tick = 7
		m.Status = core.MatchCompleted
		if err := tx.UpdateAgent("a", func(a *core.Agent) error { a.Wins++; return nil }); err != nil {
			return err
		}
		if err := tx.AppendFrame(&core.TickFrame{MatchID: "m1", Tick: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Tick)
	assert.Equal(t, core.MatchActive, got.Status)

	agent, err := s.GetAgent(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, agent.Wins)

	frames, err := s.Frames(ctx, "m1", 0)
	require.NoError(t, err)
	assert.Empty(t, frames)

	// a failing agent mutation aborts the whole commit as well
	err = s.WithMatchLock(ctx, "m1", func(tx storage.MatchTx, m *core.Match) error {
		m.Tick = 9
		return tx.UpdateAgent("b", func(a *core.Agent) error { return boom })
	})
	if err == nil {
		t.Fatal("expected mutation error")
	}
	got, err = s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Tick)
}

func testLockUnknownMatch(t *testing.T, s storage.Store) {
	called := false
	err := s.WithMatchLock(context.Background(), "ghost", func(storage.MatchTx, *core.Match) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, called)
}

func testLockSerialises(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedAgents(t, s, "a", "b")
	require.NoError(t, s.CreateMatch(ctx, Match("m1", "a", "b")))

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.WithMatchLock(ctx, "m1", func(tx storage.MatchTx, m *core.Match) error {
				m.Tick++
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1+workers, got.Tick)
}

func testCompletionReleasesPlayers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedAgents(t, s, "a", "b")
	require.NoError(t, s.CreateMatch(ctx, Match("m1", "a", "b")))

	done := time.Unix(1700000500, 0).UTC()
	require.NoError(t, s.WithMatchLock(ctx, "m1", func(tx storage.MatchTx, m *core.Match) error {
		m.Status = core.MatchCompleted
		m.WinnerID = "a"
		m.CompletedAt = &done
		m.Placements = []core.Placement{
			{AgentID: "a", Placement: 1, Kills: 1, TicksSurvived: 5},
			{AgentID: "b", Placement: 2, TicksSurvived: 5},
		}
		return nil
	}))

	_, err := s.ActiveMatchFor(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.MatchCompleted, got.Status)
	assert.Equal(t, "a", got.WinnerID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	assert.Len(t, got.Placements, 2)

	completed, err := s.ListMatches(ctx, core.MatchCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}
