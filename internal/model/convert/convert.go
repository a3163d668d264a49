// Package convert provides functions to convert GORM models to core models
package convert

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/botroyale/gridroyale/internal/model"
	"github.com/botroyale/gridroyale/pkg/core"
	"gorm.io/datatypes"
)

// decodeJSON unmarshals a JSON column into dst. Empty and null columns
// leave dst untouched.
func decodeJSON(col datatypes.JSON, dst any) error {
	if len(col) == 0 || string(col) == "null" {
		return nil
	}
	return json.Unmarshal(col, dst)
}

// AgentToCore converts a GORM Agent to a core.Agent.
func AgentToCore(a model.Agent) core.Agent {
	var meta map[string]string
	_ = decodeJSON(a.Metadata, &meta)

	return core.Agent{
		ID:         a.ID,
		Name:       a.Name,
		Token:      a.Token,
		Rating:     a.Rating,
		Wins:       a.Wins,
		Losses:     a.Losses,
		Kills:      a.Kills,
		Deaths:     a.Deaths,
		Matches:    a.Matches,
		Verified:   a.Verified,
		Metadata:   meta,
		CreatedAt:  a.CreatedAt,
		LastActive: a.LastActive,
	}
}

// PlayerToCore converts a GORM MatchPlayer to a core.PlayerState.
func PlayerToCore(p model.MatchPlayer) core.PlayerState {
	return core.PlayerState{
		AgentID:        p.AgentID,
		Pos:            core.Position{X: p.X, Y: p.Y},
		HP:             p.HP,
		Kills:          p.Kills,
		Alive:          p.Alive,
		Placement:      p.Placement,
		Timeouts:       p.Timeouts,
		EliminatedTick: p.EliminatedTick,
	}
}

// MatchToCore converts a GORM Match with its preloaded players to a core.Match.
// Players are returned in seat order.
func MatchToCore(m model.Match) (core.Match, error) {
	out := core.Match{
		ID:             m.ID,
		Status:         core.MatchStatus(m.Status),
		GridSize:       m.GridSize,
		Tick:           m.Tick,
		MaxTicks:       m.MaxTicks,
		Zone:           core.Zone{Min: m.ZoneMin, Max: m.ZoneMax},
		PendingActions: map[string]core.Action{},
		LastTickEvents: []core.TickEvent{},
		WinnerID:       m.WinnerID,
		CreatedAt:      m.CreatedAt,
		StartedAt:      m.StartedAt,
		TickStartedAt:  m.TickStartedAt,
	}
	if m.CompletedAt.Valid {
		t := m.CompletedAt.Time
		out.CompletedAt = &t
	}

	if err := decodeJSON(m.PendingActions, &out.PendingActions); err != nil {
		return core.Match{}, fmt.Errorf("match %s pending actions: %w", m.ID, err)
	}
	if err := decodeJSON(m.LastTickEvents, &out.LastTickEvents); err != nil {
		return core.Match{}, fmt.Errorf("match %s events: %w", m.ID, err)
	}
	if err := decodeJSON(m.Placements, &out.Placements); err != nil {
		return core.Match{}, fmt.Errorf("match %s placements: %w", m.ID, err)
	}

	players := slices.Clone(m.Players)
	slices.SortFunc(players, func(a, b model.MatchPlayer) int { return a.Seat - b.Seat })
	out.Players = make([]string, len(players))
	out.PlayerStates = make([]core.PlayerState, len(players))
	for i, p := range players {
		out.Players[i] = p.AgentID
		out.PlayerStates[i] = PlayerToCore(p)
	}
	return out, nil
}

// TickFrameToCore converts a GORM TickFrame to a core.TickFrame.
func TickFrameToCore(f model.TickFrame) (core.TickFrame, error) {
	out := core.TickFrame{
		MatchID: f.MatchID,
		Tick:    f.Tick,
		Zone:    core.Zone{Min: f.ZoneMin, Max: f.ZoneMax},
		Time:    f.Time,
	}
	if err := decodeJSON(f.Players, &out.Players); err != nil {
		return core.TickFrame{}, fmt.Errorf("frame %s/%d players: %w", f.MatchID, f.Tick, err)
	}
	if err := decodeJSON(f.Events, &out.Events); err != nil {
		return core.TickFrame{}, fmt.Errorf("frame %s/%d events: %w", f.MatchID, f.Tick, err)
	}
	return out, nil
}
