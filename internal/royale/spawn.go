package royale

import (
	"errors"
	"fmt"
	"time"

	"github.com/botroyale/gridroyale/pkg/core"
)

// MaxSpawns is the number of entries in the spawn table.
const MaxSpawns = 8

var (
	ErrPlayerCount     = errors.New("invalid player count")
	ErrDuplicatePlayer = errors.New("duplicate player")
)

// SpawnPoints returns the symmetric spawn table for a square grid: the four
// corners one cell in from the edge, then the four edge midpoints.
func SpawnPoints(gridSize int) []core.Position {
	lo, hi, mid := 1, gridSize-2, gridSize/2
	return []core.Position{
		{X: lo, Y: lo},
		{X: hi, Y: hi},
		{X: lo, Y: hi},
		{X: hi, Y: lo},
		{X: mid, Y: lo},
		{X: mid, Y: hi},
		{X: lo, Y: mid},
		{X: hi, Y: mid},
	}
}

// NewMatch builds an active match at tick 1 with every participant spawned.
func NewMatch(id string, agentIDs []string, rules Rules, now time.Time) (*core.Match, error) {
	if len(agentIDs) < rules.MinPlayers || len(agentIDs) > rules.MaxPlayers {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrPlayerCount, len(agentIDs), rules.MinPlayers, rules.MaxPlayers)
	}

	spawns := SpawnPoints(rules.GridSize)
	seen := make(map[string]struct{}, len(agentIDs))
	states := make([]core.PlayerState, 0, len(agentIDs))
	for i, id := range agentIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, id)
		}
		seen[id] = struct{}{}
		states = append(states, core.PlayerState{
			AgentID: id,
			Pos:     spawns[i],
			HP:      rules.StartingHP,
			Alive:   true,
		})
	}

	return &core.Match{
		ID:             id,
		Status:         core.MatchActive,
		Players:        append([]string(nil), agentIDs...),
		GridSize:       rules.GridSize,
		Tick:           1,
		MaxTicks:       rules.MaxTicks,
		Zone:           core.Zone{Min: 0, Max: rules.GridSize - 1},
		PlayerStates:   states,
		PendingActions: map[string]core.Action{},
		LastTickEvents: []core.TickEvent{},
		CreatedAt:      now,
		StartedAt:      now,
		TickStartedAt:  now,
	}, nil
}
