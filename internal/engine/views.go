package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/pkg/core"
)

// PlayerView is one participant as shown to agents and spectators.
type PlayerView struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Position  core.Position `json:"position"`
	HP        int           `json:"hp"`
	Kills     int           `json:"kills"`
	Alive     bool          `json:"alive"`
	Placement int           `json:"placement,omitempty"`
}

// Winner names the winning agent.
type Winner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlacementView is a final placement with the agent's name.
type PlacementView struct {
	core.Placement
	Name string `json:"name"`
}

// AgentView is a participant's projection of a match.
type AgentView struct {
	MatchID             string           `json:"matchId"`
	Status              core.MatchStatus `json:"status"`
	Tick                int              `json:"tick"`
	MaxTicks            int              `json:"maxTicks"`
	GridSize            int              `json:"gridSize"`
	Zone                core.Zone        `json:"zone"`
	You                 PlayerView       `json:"you"`
	Bots                []PlayerView     `json:"bots"`
	EventsLastTick      []core.TickEvent `json:"eventsLastTick"`
	AliveCount          int              `json:"aliveCount"`
	YourActionSubmitted bool             `json:"yourActionSubmitted"`
	Winner              *Winner          `json:"winner,omitempty"`
	Placements          []PlacementView  `json:"placements,omitempty"`
}

// SpectatorView is the full-visibility projection of a match.
type SpectatorView struct {
	MatchID    string           `json:"matchId"`
	Status     core.MatchStatus `json:"status"`
	Tick       int              `json:"tick"`
	MaxTicks   int              `json:"maxTicks"`
	GridSize   int              `json:"gridSize"`
	Zone       core.Zone        `json:"zone"`
	Players    []PlayerView     `json:"players"`
	Pending    []string         `json:"pending"`
	Events     []core.TickEvent `json:"events"`
	AliveCount int              `json:"aliveCount"`
	Winner     *Winner          `json:"winner,omitempty"`
	Placements []PlacementView  `json:"placements,omitempty"`
}

// MatchSummary is one row of the active match listing.
type MatchSummary struct {
	MatchID     string   `json:"matchId"`
	Tick        int      `json:"tick"`
	PlayerNames []string `json:"playerNames"`
	AliveCount  int      `json:"aliveCount"`
}

func (e *Engine) getMatch(ctx context.Context, matchID string) (*core.Match, error) {
	m, err := e.deps.Store.GetMatch(ctx, matchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierr.ErrMatchNotFound
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return m, nil
}

func (e *Engine) names(ctx context.Context, ids []string) map[string]string {
	if e.deps.Directory == nil {
		out := make(map[string]string, len(ids))
		for _, id := range ids {
			out[id] = id
		}
		return out
	}
	return e.deps.Directory.Names(ctx, ids)
}

func playerView(p core.PlayerState, names map[string]string) PlayerView {
	return PlayerView{
		ID:        p.AgentID,
		Name:      names[p.AgentID],
		Position:  p.Pos,
		HP:        p.HP,
		Kills:     p.Kills,
		Alive:     p.Alive,
		Placement: p.Placement,
	}
}

func outcomeViews(m *core.Match, names map[string]string) (*Winner, []PlacementView) {
	if m.WinnerID == "" {
		return nil, nil
	}
	placements := make([]PlacementView, len(m.Placements))
	for i, p := range m.Placements {
		placements[i] = PlacementView{Placement: p, Name: names[p.AgentID]}
	}
	return &Winner{ID: m.WinnerID, Name: names[m.WinnerID]}, placements
}

func events(m *core.Match) []core.TickEvent {
	if m.LastTickEvents == nil {
		return []core.TickEvent{}
	}
	return m.LastTickEvents
}

// GetState returns agentID's view of a match. Reading never changes the
// match.
func (e *Engine) GetState(ctx context.Context, agentID, matchID string) (*AgentView, error) {
	m, err := e.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	self, ok := m.Player(agentID)
	if !ok {
		return nil, apierr.ErrNotAParticipant
	}

	names := e.names(ctx, m.Players)
	view := &AgentView{
		MatchID:        m.ID,
		Status:         m.Status,
		Tick:           m.Tick,
		MaxTicks:       m.MaxTicks,
		GridSize:       m.GridSize,
		Zone:           m.Zone,
		You:            playerView(*self, names),
		Bots:           []PlayerView{},
		EventsLastTick: events(m),
		AliveCount:     m.AliveCount(),
	}
	_, view.YourActionSubmitted = m.PendingActions[agentID]
	for _, p := range m.PlayerStates {
		if p.AgentID != agentID && p.Alive {
			view.Bots = append(view.Bots, playerView(p, names))
		}
	}
	view.Winner, view.Placements = outcomeViews(m, names)
	return view, nil
}

// Spectate returns the full-visibility view of a match.
func (e *Engine) Spectate(ctx context.Context, matchID string) (*SpectatorView, error) {
	m, err := e.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	names := e.names(ctx, m.Players)
	view := &SpectatorView{
		MatchID:    m.ID,
		Status:     m.Status,
		Tick:       m.Tick,
		MaxTicks:   m.MaxTicks,
		GridSize:   m.GridSize,
		Zone:       m.Zone,
		Players:    make([]PlayerView, len(m.PlayerStates)),
		Pending:    m.PendingIDs(),
		Events:     events(m),
		AliveCount: m.AliveCount(),
	}
	for i, p := range m.PlayerStates {
		view.Players[i] = playerView(p, names)
	}
	view.Winner, view.Placements = outcomeViews(m, names)
	return view, nil
}

// ListActive summarises every active match.
func (e *Engine) ListActive(ctx context.Context) ([]MatchSummary, error) {
	matches, err := e.deps.Store.ListMatches(ctx, core.MatchActive)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("failed to list matches: %w", err))
	}

	out := make([]MatchSummary, 0, len(matches))
	for _, m := range matches {
		names := e.names(ctx, m.Players)
		summary := MatchSummary{
			MatchID:     m.ID,
			Tick:        m.Tick,
			PlayerNames: make([]string, len(m.Players)),
			AliveCount:  m.AliveCount(),
		}
		for i, id := range m.Players {
			summary.PlayerNames[i] = names[id]
		}
		out = append(out, summary)
	}
	return out, nil
}

// History returns up to limit of the most recent tick frames, oldest first.
// A limit of zero returns every retained frame.
func (e *Engine) History(ctx context.Context, matchID string, limit int) ([]core.TickFrame, error) {
	frames, err := e.deps.Store.Frames(ctx, matchID, limit)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierr.ErrMatchNotFound
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if frames == nil {
		frames = []core.TickFrame{}
	}
	return frames, nil
}
