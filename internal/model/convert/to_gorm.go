// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"

	"github.com/botroyale/gridroyale/internal/model"
	"github.com/botroyale/gridroyale/pkg/core"
	"gorm.io/datatypes"
)

// toJSON marshals v for a JSON column, falling back to empty when v is nil.
func toJSON(v any, empty string) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return datatypes.JSON(empty)
	}
	return datatypes.JSON(data)
}

// CoreToAgent converts a core.Agent to a GORM model.Agent.
func CoreToAgent(a core.Agent) model.Agent {
	return model.Agent{
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
		Metadata:   toJSON(a.Metadata, "{}"),
		CreatedAt:  a.CreatedAt,
		LastActive: a.LastActive,
	}
}

// CoreToPlayer converts a core.PlayerState to a GORM model.MatchPlayer.
func CoreToPlayer(matchID string, seat int, p core.PlayerState) model.MatchPlayer {
	return model.MatchPlayer{
		MatchID:        matchID,
		AgentID:        p.AgentID,
		Seat:           seat,
		X:              p.Pos.X,
		Y:              p.Pos.Y,
		HP:             p.HP,
		Kills:          p.Kills,
		Alive:          p.Alive,
		Placement:      p.Placement,
		Timeouts:       p.Timeouts,
		EliminatedTick: p.EliminatedTick,
	}
}

// CoreToMatch converts a core.Match to a GORM model.Match including its player rows.
func CoreToMatch(m core.Match) model.Match {
	out := model.Match{
		ID:             m.ID,
		Status:         string(m.Status),
		GridSize:       m.GridSize,
		Tick:           m.Tick,
		MaxTicks:       m.MaxTicks,
		ZoneMin:        m.Zone.Min,
		ZoneMax:        m.Zone.Max,
		PendingActions: toJSON(m.PendingActions, "{}"),
		LastTickEvents: toJSON(m.LastTickEvents, "[]"),
		WinnerID:       m.WinnerID,
		Placements:     toJSON(m.Placements, "[]"),
		CreatedAt:      m.CreatedAt,
		StartedAt:      m.StartedAt,
		TickStartedAt:  m.TickStartedAt,
	}
	if m.CompletedAt != nil {
		out.CompletedAt = sql.NullTime{Time: *m.CompletedAt, Valid: true}
	}

	out.Players = make([]model.MatchPlayer, len(m.PlayerStates))
	for i, p := range m.PlayerStates {
		out.Players[i] = CoreToPlayer(m.ID, i, p)
	}
	return out
}

// CoreToTickFrame converts a core.TickFrame to a GORM model.TickFrame.
func CoreToTickFrame(f core.TickFrame) model.TickFrame {
	return model.TickFrame{
		MatchID: f.MatchID,
		Tick:    f.Tick,
		ZoneMin: f.Zone.Min,
		ZoneMax: f.Zone.Max,
		Players: toJSON(f.Players, "[]"),
		Events:  toJSON(f.Events, "[]"),
		Time:    f.Time,
	}
}
