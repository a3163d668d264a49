package engine

import (
	"context"
	"testing"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/royale"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetState(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b", "c", "x")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	view, err := f.engine.GetState(ctx, "a", m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, view.MatchID)
	assert.Equal(t, 1, view.Tick)
	assert.Equal(t, 100, view.MaxTicks)
	assert.Equal(t, "bot-a", view.You.Name)
	assert.Equal(t, 3, view.You.HP)
	assert.Equal(t, 3, view.AliveCount)
	assert.False(t, view.YourActionSubmitted)
	assert.Nil(t, view.Winner)
	assert.Empty(t, view.EventsLastTick)
	require.Len(t, view.Bots, 2)
	assert.Equal(t, "b", view.Bots[0].ID)
	assert.Equal(t, "bot-c", view.Bots[1].Name)

	_, err = f.engine.SubmitAction(ctx, "a", m.ID, stay())
	require.NoError(t, err)
	view, err = f.engine.GetState(ctx, "a", m.ID)
	require.NoError(t, err)
	assert.True(t, view.YourActionSubmitted)

	other, err := f.engine.GetState(ctx, "b", m.ID)
	require.NoError(t, err)
	assert.False(t, other.YourActionSubmitted)

	_, err = f.engine.GetState(ctx, "x", m.ID)
	assert.ErrorIs(t, err, apierr.ErrNotAParticipant)
	_, err = f.engine.GetState(ctx, "a", "ghost")
	assert.ErrorIs(t, err, apierr.ErrMatchNotFound)
}

func TestGetState_IsIdempotent(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	first, err := f.engine.GetState(ctx, "a", m.ID)
	require.NoError(t, err)
	second, err := f.engine.GetState(ctx, "a", m.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Tick)
}

func TestGetState_ShowsOutcome(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	require.NoError(t, f.store.WithMatchLock(ctx, m.ID, func(_ storage.MatchTx, cur *core.Match) error {
		cur.MaxTicks = 1
		return nil
	}))
	_, err = f.engine.ForceResolve(ctx, m.ID)
	require.NoError(t, err)

	view, err := f.engine.GetState(ctx, "b", m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MatchCompleted, view.Status)
	require.NotNil(t, view.Winner)
	assert.Equal(t, "bot-a", view.Winner.Name)
	require.Len(t, view.Placements, 2)
	assert.Equal(t, "bot-b", view.Placements[1].Name)
}

func TestSpectate(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	_, err = f.engine.SubmitAction(ctx, "b", m.ID, stay())
	require.NoError(t, err)

	view, err := f.engine.Spectate(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MatchActive, view.Status)
	require.Len(t, view.Players, 2)
	assert.Equal(t, "bot-a", view.Players[0].Name)
	assert.Equal(t, core.Position{X: 13, Y: 13}, view.Players[1].Position)
	assert.Equal(t, []string{"b"}, view.Pending)
	assert.Equal(t, 2, view.AliveCount)

	_, err = f.engine.Spectate(ctx, "ghost")
	assert.ErrorIs(t, err, apierr.ErrMatchNotFound)
}

func TestListActive(t *testing.T) {
	rules := royale.DefaultRules()
	f := newFixture(t, rules, "a", "b", "c", "d")
	ctx := context.Background()

	m1, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	_, err = f.engine.CreateMatch(ctx, []string{"c", "d"})
	require.NoError(t, err)

	list, err := f.engine.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[string]MatchSummary{}
	for _, s := range list {
		byID[s.MatchID] = s
	}
	assert.Equal(t, MatchSummary{MatchID: m1.ID, Tick: 1, PlayerNames: []string{"bot-a", "bot-b"}, AliveCount: 2}, byID[m1.ID])
}

func TestHistory(t *testing.T) {
	f := newFixture(t, royale.DefaultRules(), "a", "b")
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	frames, err := f.engine.History(ctx, m.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, frames)

	for range 3 {
		_, err := f.engine.ForceResolve(ctx, m.ID)
		require.NoError(t, err)
	}

	frames, err = f.engine.History(ctx, m.ID, 2)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 2, frames[0].Tick)
	assert.Equal(t, 3, frames[1].Tick)
	assert.Len(t, frames[1].Players, 2)

	_, err = f.engine.History(ctx, "ghost", 0)
	assert.ErrorIs(t, err, apierr.ErrMatchNotFound)
}
