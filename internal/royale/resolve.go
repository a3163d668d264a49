package royale

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/botroyale/gridroyale/pkg/core"
)

var (
	ErrNotActive      = errors.New("match is not active")
	ErrCorruptPending = errors.New("pending actions are inconsistent with match state")
)

// ForfeitReason is recorded on forfeit events.
const ForfeitReason = "too many timeouts"

// Outcome is the result of resolving one tick.
type Outcome struct {
	Match     *core.Match
	Events    []core.TickEvent
	Completed bool
}

// resolution carries the working state of a single Resolve call.
type resolution struct {
	m      *core.Match
	rules  Rules
	rng    Rand
	tick   int
	events []core.TickEvent
}

type intent struct {
	idx      int
	from, to core.Position
}

// Resolve advances pre by one tick using its pending actions. Alive
// participants without a pending action are treated as timed out. pre is
// never modified; on error nothing of the attempt is returned.
func Resolve(pre *core.Match, rules Rules, rng Rand) (*Outcome, error) {
	if pre == nil {
		return nil, errors.New("nil match")
	}
	if pre.Status != core.MatchActive {
		return nil, fmt.Errorf("%w: %s", ErrNotActive, pre.Status)
	}
	if err := checkPending(pre); err != nil {
		return nil, err
	}

	r := &resolution{
		m:      pre.Clone(),
		rules:  rules,
		rng:    rng,
		tick:   pre.Tick,
		events: []core.TickEvent{},
	}

	intents := r.moveIntents()
	r.applyMoves(intents)
	r.shoot()
	r.zoneDamage()
	r.forfeit()
	r.shrinkZone()
	completed := r.checkTermination()

	r.m.Tick = pre.Tick + 1
	r.m.PendingActions = map[string]core.Action{}
	r.m.LastTickEvents = r.events

	return &Outcome{Match: r.m, Events: r.events, Completed: completed}, nil
}

func checkPending(m *core.Match) error {
	for id, a := range m.PendingActions {
		p, ok := m.Player(id)
		if !ok || !p.Alive {
			return fmt.Errorf("%w: action from %s", ErrCorruptPending, id)
		}
		if !a.Move.IsMove() {
			return fmt.Errorf("%w: move %q from %s", ErrCorruptPending, a.Move, id)
		}
		if a.Shoot != nil && !a.Shoot.IsShoot() {
			return fmt.Errorf("%w: shoot %q from %s", ErrCorruptPending, *a.Shoot, id)
		}
	}
	return nil
}

func (r *resolution) emit(e core.TickEvent) {
	r.events = append(r.events, e)
}

// moveIntents picks each alive participant's direction and clamped destination.
func (r *resolution) moveIntents() []intent {
	var intents []intent
	for i := range r.m.PlayerStates {
		p := &r.m.PlayerStates[i]
		if !p.Alive {
			continue
		}

		from := p.Pos
		action, submitted := r.m.PendingActions[p.AgentID]
		if !submitted {
			dir := core.Moves[r.rng.IntN(len(core.Moves))]
			to := from.Step(dir, r.m.GridSize)
			p.Timeouts++
			r.emit(core.TickEvent{Type: core.EventTimeout, AgentID: p.AgentID, Direction: dir, From: &from, To: &to})
			intents = append(intents, intent{idx: i, from: from, to: to})
			continue
		}

		p.Timeouts = 0
		to := from.Step(action.Move, r.m.GridSize)
		if action.Move != core.Stay && to != from {
			r.emit(core.TickEvent{Type: core.EventMove, AgentID: p.AgentID, Direction: action.Move, From: &from, To: &to})
		}
		intents = append(intents, intent{idx: i, from: from, to: to})
	}
	return intents
}

// applyMoves bounces every participant whose destination is contested and
// moves the rest simultaneously. A bounce that lands on a cell another
// participant was moving into bounces that participant as well.
func (r *resolution) applyMoves(intents []intent) {
	bounced := make([]bool, len(intents))
	for {
		claims := make(map[core.Position]int, len(intents))
		for i, in := range intents {
			if bounced[i] {
				claims[in.from]++
			} else {
				claims[in.to]++
			}
		}

		changed := false
		for i, in := range intents {
			if !bounced[i] && claims[in.to] > 1 {
				bounced[i] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for i, in := range intents {
		p := &r.m.PlayerStates[in.idx]
		if bounced[i] {
			p.Pos = in.from
			to, back := in.to, in.from
			r.emit(core.TickEvent{Type: core.EventCollision, AgentID: p.AgentID, To: &to, BouncedTo: &back})
			continue
		}
		p.Pos = in.to
	}
}

// shoot fires every alive participant's shot in participant order.
func (r *resolution) shoot() {
	for i := range r.m.PlayerStates {
		shooter := &r.m.PlayerStates[i]
		if !shooter.Alive {
			continue
		}
		action, ok := r.m.PendingActions[shooter.AgentID]
		if !ok || action.Shoot == nil {
			continue
		}

		dir := *action.Shoot
		from := shooter.Pos
		r.emit(core.TickEvent{Type: core.EventShot, AgentID: shooter.AgentID, Direction: dir, From: &from})

		dx, dy := dir.Delta()
		for step := 1; step <= r.rules.BulletRange; step++ {
			cell := core.Position{X: from.X + dx*step, Y: from.Y + dy*step}
			if !cell.InBounds(r.m.GridSize) {
				break
			}
			target := r.occupant(cell, shooter.AgentID)
			if target == nil {
				continue
			}

			target.HP -= r.rules.BulletDamage
			r.emit(core.TickEvent{Type: core.EventHit, AgentID: shooter.AgentID, TargetID: target.AgentID, To: &cell, Damage: r.rules.BulletDamage})
			if target.HP <= 0 {
				r.eliminate(target)
				shooter.Kills++
				r.emit(core.TickEvent{Type: core.EventKill, AgentID: shooter.AgentID, TargetID: target.AgentID})
			}
			break
		}
	}
}

func (r *resolution) occupant(cell core.Position, exclude string) *core.PlayerState {
	for i := range r.m.PlayerStates {
		p := &r.m.PlayerStates[i]
		if p.Alive && p.AgentID != exclude && p.Pos == cell {
			return p
		}
	}
	return nil
}

// zoneDamage hurts every alive participant standing outside the zone.
func (r *resolution) zoneDamage() {
	for i := range r.m.PlayerStates {
		p := &r.m.PlayerStates[i]
		if !p.Alive || r.m.Zone.Contains(p.Pos) {
			continue
		}
		pos := p.Pos
		p.HP -= r.rules.ZoneDamage
		r.emit(core.TickEvent{Type: core.EventZoneDamage, AgentID: p.AgentID, To: &pos, Damage: r.rules.ZoneDamage})
		if p.HP <= 0 {
			r.eliminate(p)
			r.emit(core.TickEvent{Type: core.EventKill, AgentID: core.ZoneActor, TargetID: p.AgentID})
		}
	}
}

// forfeit removes every participant that reached the timeout cap.
func (r *resolution) forfeit() {
	for i := range r.m.PlayerStates {
		p := &r.m.PlayerStates[i]
		if !p.Alive || p.Timeouts < r.rules.MaxTimeouts {
			continue
		}
		p.HP = 0
		r.eliminate(p)
		r.emit(core.TickEvent{Type: core.EventForfeit, AgentID: p.AgentID, Reason: ForfeitReason})
	}
}

// eliminate marks p dead and assigns its placement from the survivors left.
func (r *resolution) eliminate(p *core.PlayerState) {
	p.Alive = false
	p.Placement = r.m.AliveCount() + 1
	p.EliminatedTick = r.tick
}

func (r *resolution) shrinkZone() {
	next := r.tick + 1
	step := r.rules.ShrinkStep
	z := r.m.Zone
	if next%r.rules.ShrinkInterval != 0 || z.Min+step > z.Max-step {
		return
	}
	z.Min += step
	z.Max -= step
	r.m.Zone = z
	r.emit(core.TickEvent{Type: core.EventZoneShrink, Zone: &z})
}

// checkTermination completes the match when at most one participant is left
// or the tick cap is passed, deciding the winner and final placements.
func (r *resolution) checkTermination() bool {
	alive := r.m.AliveCount()
	if alive > 1 && r.tick+1 <= r.m.MaxTicks {
		return false
	}

	switch {
	case alive == 0:
		best := 0
		for _, p := range r.m.PlayerStates {
			if best == 0 || p.Placement < best {
				best = p.Placement
				r.m.WinnerID = p.AgentID
			}
		}
	default:
		var survivors []*core.PlayerState
		for i := range r.m.PlayerStates {
			if r.m.PlayerStates[i].Alive {
				survivors = append(survivors, &r.m.PlayerStates[i])
			}
		}
		sort.SliceStable(survivors, func(a, b int) bool {
			if survivors[a].HP != survivors[b].HP {
				return survivors[a].HP > survivors[b].HP
			}
			return survivors[a].Kills > survivors[b].Kills
		})
		for rank, p := range survivors {
			p.Placement = rank + 1
		}
		r.m.WinnerID = survivors[0].AgentID
	}

	placements := make([]core.Placement, 0, len(r.m.PlayerStates))
	for _, p := range r.m.PlayerStates {
		survived := r.tick
		if !p.Alive {
			survived = p.EliminatedTick
		}
		placements = append(placements, core.Placement{
			AgentID:       p.AgentID,
			Placement:     p.Placement,
			Kills:         p.Kills,
			TicksSurvived: survived,
		})
	}
	slices.SortFunc(placements, func(a, b core.Placement) int {
		return a.Placement - b.Placement
	})

	r.m.Status = core.MatchCompleted
	r.m.Placements = placements
	return true
}
