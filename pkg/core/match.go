// pkg/core/match.go
package core

import (
	"maps"
	"slices"
	"time"
)

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchWaiting   MatchStatus = "waiting"
	MatchActive    MatchStatus = "active"
	MatchCompleted MatchStatus = "completed"
)

// Zone is the in-bounds square. The same bounds apply to both axes.
type Zone struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether p lies inside the zone on both axes.
func (z Zone) Contains(p Position) bool {
	return p.X >= z.Min && p.X <= z.Max && p.Y >= z.Min && p.Y <= z.Max
}

// Width is the number of cells along one axis.
func (z Zone) Width() int {
	return z.Max - z.Min + 1
}

// PlayerState is one participant's in-match state.
type PlayerState struct {
	AgentID        string   `json:"agentId"`
	Pos            Position `json:"position"`
	HP             int      `json:"hp"`
	Kills          int      `json:"kills"`
	Alive          bool     `json:"alive"`
	Placement      int      `json:"placement,omitempty"`
	Timeouts       int      `json:"timeouts"`
	EliminatedTick int      `json:"eliminatedTick,omitempty"`
}

// Placement is a participant's final result.
type Placement struct {
	AgentID       string `json:"agentId"`
	Placement     int    `json:"placement"`
	Kills         int    `json:"kills"`
	TicksSurvived int    `json:"ticksSurvived"`
}

// Match is the authoritative state of one grid royale game.
type Match struct {
	ID             string            `json:"id"`
	Status         MatchStatus       `json:"status"`
	Players        []string          `json:"players"`
	GridSize       int               `json:"gridSize"`
	Tick           int               `json:"tick"`
	MaxTicks       int               `json:"maxTicks"`
	Zone           Zone              `json:"zone"`
	PlayerStates   []PlayerState     `json:"playerStates"`
	PendingActions map[string]Action `json:"pendingActions"`
	LastTickEvents []TickEvent       `json:"lastTickEvents"`
	WinnerID       string            `json:"winnerId,omitempty"`
	Placements     []Placement       `json:"placements,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	StartedAt      time.Time         `json:"startedAt"`
	TickStartedAt  time.Time         `json:"tickStartedAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Players = slices.Clone(m.Players)
	c.PlayerStates = slices.Clone(m.PlayerStates)
	c.PendingActions = make(map[string]Action, len(m.PendingActions))
	for id, a := range m.PendingActions {
		if a.Shoot != nil {
			s := *a.Shoot
			a.Shoot = &s
		}
		c.PendingActions[id] = a
	}
	c.LastTickEvents = cloneEvents(m.LastTickEvents)
	c.Placements = slices.Clone(m.Placements)
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Player returns the state of the given participant.
func (m *Match) Player(agentID string) (*PlayerState, bool) {
	for i := range m.PlayerStates {
		if m.PlayerStates[i].AgentID == agentID {
			return &m.PlayerStates[i], true
		}
	}
	return nil, false
}

// IsParticipant reports whether agentID plays in m.
func (m *Match) IsParticipant(agentID string) bool {
	return slices.Contains(m.Players, agentID)
}

// AliveCount returns the number of participants still alive.
func (m *Match) AliveCount() int {
	n := 0
	for _, p := range m.PlayerStates {
		if p.Alive {
			n++
		}
	}
	return n
}

// AwaitingActions reports whether every alive participant has submitted.
func (m *Match) AwaitingActions() bool {
	for _, p := range m.PlayerStates {
		if !p.Alive {
			continue
		}
		if _, ok := m.PendingActions[p.AgentID]; !ok {
			return true
		}
	}
	return false
}

// Finished reports whether the match reached its terminal state.
func (m *Match) Finished() bool {
	return m.Status == MatchCompleted
}

// PendingIDs returns the ids with a pending action, sorted.
func (m *Match) PendingIDs() []string {
	return slices.Sorted(maps.Keys(m.PendingActions))
}

// TickFrame is one resolved tick appended to a match's history stream.
type TickFrame struct {
	MatchID string        `json:"matchId"`
	Tick    int           `json:"tick"`
	Zone    Zone          `json:"zone"`
	Players []PlayerState `json:"players"`
	Events  []TickEvent   `json:"events"`
	Time    time.Time     `json:"time"`
}

// MatchResult is published once a match completes.
type MatchResult struct {
	Match        Match          `json:"match"`
	RatingDeltas map[string]int `json:"ratingDeltas"`
}
