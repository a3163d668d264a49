// Package rating computes the rating change each participant receives when a
// match completes.
package rating

import (
	"fmt"
	"math"

	"github.com/botroyale/gridroyale/pkg/core"
)

const (
	StrategyFixed = "fixed"
	StrategyElo   = "elo"
)

// Updater turns final placements into per-agent rating deltas.
// ratings holds each participant's rating before the match.
type Updater interface {
	Name() string
	Deltas(placements []core.Placement, ratings map[string]int) map[string]int
}

// New returns the updater registered under name.
func New(name string) (Updater, error) {
	switch name {
	case "", StrategyFixed:
		return FixedDelta{Win: 25, Loss: -10}, nil
	case StrategyElo:
		return Elo{K: 32}, nil
	default:
		return nil, fmt.Errorf("unknown rating strategy %q", name)
	}
}

// FixedDelta awards Win to the first place and Loss to everyone else.
type FixedDelta struct {
	Win  int
	Loss int
}

func (FixedDelta) Name() string { return StrategyFixed }

func (f FixedDelta) Deltas(placements []core.Placement, _ map[string]int) map[string]int {
	out := make(map[string]int, len(placements))
	for _, p := range placements {
		if p.Placement == 1 {
			out[p.AgentID] = f.Win
		} else {
			out[p.AgentID] = f.Loss
		}
	}
	return out
}

// Elo scores every pair of participants as a separate game decided by
// placement and scales the summed result by K/(n-1).
type Elo struct {
	K float64
}

func (Elo) Name() string { return StrategyElo }

func (e Elo) Deltas(placements []core.Placement, ratings map[string]int) map[string]int {
	n := len(placements)
	out := make(map[string]int, n)
	if n < 2 {
		for _, p := range placements {
			out[p.AgentID] = 0
		}
		return out
	}

	scale := e.K / float64(n-1)
	for _, a := range placements {
		var sum float64
		for _, b := range placements {
			if a.AgentID == b.AgentID {
				continue
			}
			sum += score(a.Placement, b.Placement) - Expected(ratings[a.AgentID], ratings[b.AgentID])
		}
		out[a.AgentID] = int(math.Round(scale * sum))
	}
	return out
}

// Expected is the probability that a player rated ra beats one rated rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

func score(a, b int) float64 {
	switch {
	case a < b:
		return 1
	case a == b:
		return 0.5
	default:
		return 0
	}
}
