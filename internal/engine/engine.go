// Package engine owns the lifecycle of grid royale matches. Every mutation
// of a match runs inside storage.Store.WithMatchLock, so submissions, forced
// resolutions and the scheduler never advance the same tick twice.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/dispatcher"
	"github.com/botroyale/gridroyale/internal/rating"
	"github.com/botroyale/gridroyale/internal/royale"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/pkg/core"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultActionTimeout is how long a tick waits for submissions before the
// scheduler forces it.
const DefaultActionTimeout = 3 * time.Second

// Emitter publishes post-commit notifications.
type Emitter interface {
	Emit(e dispatcher.Event)
}

// Directory resolves agent ids to display names.
type Directory interface {
	Names(ctx context.Context, ids []string) map[string]string
}

// Dependencies holds all dependencies for the engine
type Dependencies struct {
	Store         storage.Store
	Rules         royale.Rules
	Rating        rating.Updater
	Rand          royale.Rand
	ActionTimeout time.Duration
	Directory     Directory
	Events        Emitter
	Logger        *slog.Logger
	Now           func() time.Time
	NewID         func() string
}

// Engine runs matches.
type Engine struct {
	deps Dependencies
	ins  instruments

	lastResolve atomic.Int64
}

// SubmitResult reports what happened to a submitted action. Tick is the
// match tick after the call.
type SubmitResult struct {
	Accepted     bool `json:"accepted"`
	TickResolved bool `json:"tickResolved"`
	Tick         int  `json:"tick"`
}

// ResolveResult reports the outcome of a forced resolution. Resolved is false
// when the match had already completed.
type ResolveResult struct {
	Resolved  bool `json:"resolved"`
	Tick      int  `json:"tick"`
	Completed bool `json:"completed"`
}

// committed carries what a locked resolution produced for post-commit fan-out.
type committed struct {
	frame    core.TickFrame
	result   *core.MatchResult
	duration time.Duration
}

// New creates an engine, filling in defaults for optional dependencies.
func New(deps Dependencies) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine requires a store")
	}
	if err := deps.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	if deps.Rating == nil {
		deps.Rating, _ = rating.New(rating.StrategyFixed)
	}
	if deps.Rand == nil {
		deps.Rand = royale.NewRand(0)
	}
	if deps.ActionTimeout <= 0 {
		deps.ActionTimeout = DefaultActionTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	ins, err := newInstruments()
	if err != nil {
		return nil, err
	}
	return &Engine{deps: deps, ins: ins}, nil
}

// LastResolveDuration is the wall time of the most recent tick resolution.
func (e *Engine) LastResolveDuration() time.Duration {
	return time.Duration(e.lastResolve.Load())
}

func (e *Engine) emit(typ, matchID string, payload any) {
	if e.deps.Events == nil {
		return
	}
	e.deps.Events.Emit(dispatcher.Event{Type: typ, MatchID: matchID, Payload: payload, Timestamp: e.deps.Now()})
}

// CreateMatch starts an active match at tick 1 for the given agents, in seat
// order.
func (e *Engine) CreateMatch(ctx context.Context, agentIDs []string) (*core.Match, error) {
	m, err := royale.NewMatch(e.deps.NewID(), agentIDs, e.deps.Rules, e.deps.Now().UTC())
	if err != nil {
		return nil, apierr.ErrBadRequest.Withf("cannot create match: %v", err)
	}
	if err := e.deps.Store.CreateMatch(ctx, m); err != nil {
		return nil, apierr.Internal(fmt.Errorf("failed to create match: %w", err))
	}

	e.deps.Logger.Info("Match created", "matchId", m.ID, "players", len(agentIDs))
	e.emit(core.TopicMatchCreated, m.ID, *m.Clone())
	return m, nil
}

// SubmitAction records an agent's action for the current tick and resolves
// the tick once every alive participant has submitted.
func (e *Engine) SubmitAction(ctx context.Context, agentID, matchID string, action core.Action) (SubmitResult, error) {
	var (
		res  SubmitResult
		done *committed
	)
	err := e.deps.Store.WithMatchLock(ctx, matchID, func(tx storage.MatchTx, m *core.Match) error {
		if err := checkSubmission(m, agentID, action); err != nil {
			return err
		}
		if action.Shoot != nil {
			s := *action.Shoot
			action.Shoot = &s
		}
		m.PendingActions[agentID] = action
		res.Accepted = true

		if !m.AwaitingActions() {
			c, err := e.resolveLocked(tx, m)
			if err != nil {
				return err
			}
			done = c
			res.TickResolved = true
		}
		res.Tick = m.Tick
		return nil
	})
	if err != nil {
		return SubmitResult{}, e.classify(err)
	}

	e.published(matchID, done)
	return res, nil
}

// checkSubmission applies the submission preconditions in their fixed order.
func checkSubmission(m *core.Match, agentID string, action core.Action) error {
	if m.Status != core.MatchActive {
		return apierr.ErrMatchNotActive
	}
	p, ok := m.Player(agentID)
	if !ok {
		return apierr.ErrNotAParticipant
	}
	if !p.Alive {
		return apierr.ErrAlreadyEliminated
	}
	if !action.Move.IsMove() {
		return apierr.ErrInvalidMove
	}
	if action.Shoot != nil && !action.Shoot.IsShoot() {
		return apierr.ErrInvalidShootDirection
	}
	if _, dup := m.PendingActions[agentID]; dup {
		return apierr.ErrDuplicateSubmission
	}
	return nil
}

// ForceResolve resolves the pending tick, treating missing submissions as
// timeouts.
func (e *Engine) ForceResolve(ctx context.Context, matchID string) (ResolveResult, error) {
	var (
		res  ResolveResult
		done *committed
	)
	err := e.deps.Store.WithMatchLock(ctx, matchID, func(tx storage.MatchTx, m *core.Match) error {
		switch m.Status {
		case core.MatchCompleted:
			res = ResolveResult{Tick: m.Tick, Completed: true}
			return nil
		case core.MatchActive:
		default:
			return apierr.ErrMatchNotActive
		}

		c, err := e.resolveLocked(tx, m)
		if err != nil {
			return err
		}
		done = c
		res = ResolveResult{Resolved: true, Tick: m.Tick, Completed: m.Finished()}
		return nil
	})
	if err != nil {
		return ResolveResult{}, e.classify(err)
	}

	e.published(matchID, done)
	return res, nil
}

// ResolveStale force-resolves every active match whose current tick started
// at least ActionTimeout before now. It returns the number of ticks resolved.
func (e *Engine) ResolveStale(ctx context.Context, now time.Time) (int, error) {
	active, err := e.deps.Store.ListMatches(ctx, core.MatchActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list active matches: %w", err)
	}

	resolved := 0
	var errs []error
	for _, m := range active {
		if !e.isStale(&m, now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return resolved, err
		}

		var done *committed
		err := e.deps.Store.WithMatchLock(ctx, m.ID, func(tx storage.MatchTx, cur *core.Match) error {
			// Agents may have completed the tick since the listing.
			if cur.Status != core.MatchActive || !e.isStale(cur, now) {
				return nil
			}
			c, err := e.resolveLocked(tx, cur)
			if err != nil {
				return err
			}
			done = c
			return nil
		})
		if err != nil {
			e.deps.Logger.Error("Failed to resolve stale tick", "matchId", m.ID, "tick", m.Tick, "error", err)
			errs = append(errs, fmt.Errorf("match %s: %w", m.ID, err))
			continue
		}
		if done != nil {
			resolved++
			e.deps.Logger.Debug("Resolved stale tick", "matchId", m.ID, "tick", done.frame.Tick)
			e.published(m.ID, done)
		}
	}
	return resolved, errors.Join(errs...)
}

func (e *Engine) isStale(m *core.Match, now time.Time) bool {
	return !now.Before(m.TickStartedAt.Add(e.deps.ActionTimeout))
}

// resolveLocked advances m by one tick in place. It must run inside
// WithMatchLock; any error discards the whole attempt.
func (e *Engine) resolveLocked(tx storage.MatchTx, m *core.Match) (*committed, error) {
	start := time.Now()
	out, err := royale.Resolve(m, e.deps.Rules, e.deps.Rand)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("resolve tick %d of %s: %w", m.Tick, m.ID, err))
	}

	now := e.deps.Now().UTC()
	next := out.Match
	next.TickStartedAt = now

	c := &committed{
		frame: core.TickFrame{
			MatchID: m.ID,
			Tick:    m.Tick,
			Zone:    next.Zone,
			Players: append([]core.PlayerState(nil), next.PlayerStates...),
			Events:  out.Events,
			Time:    now,
		},
	}

	if out.Completed {
		next.CompletedAt = &now
		deltas, err := e.applyRatings(tx, next, now)
		if err != nil {
			return nil, err
		}
		c.result = &core.MatchResult{Match: *next.Clone(), RatingDeltas: deltas}
	}

	if err := tx.AppendFrame(&c.frame); err != nil {
		return nil, apierr.Internal(fmt.Errorf("append frame: %w", err))
	}

	*m = *next
	c.duration = time.Since(start)
	e.lastResolve.Store(int64(c.duration))
	return c, nil
}

// applyRatings updates every participant's record for a completed match.
func (e *Engine) applyRatings(tx storage.MatchTx, m *core.Match, now time.Time) (map[string]int, error) {
	ratings := make(map[string]int, len(m.Players))
	for _, id := range m.Players {
		agent, err := tx.GetAgent(id)
		if errors.Is(err, storage.ErrNotFound) {
			e.deps.Logger.Warn("Skipping rating for unknown agent", "matchId", m.ID, "agentId", id)
			continue
		}
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("load agent %s: %w", id, err))
		}
		ratings[id] = agent.Rating
	}

	deltas := e.deps.Rating.Deltas(m.Placements, ratings)
	for _, p := range m.Placements {
		if _, known := ratings[p.AgentID]; !known {
			delete(deltas, p.AgentID)
			continue
		}
		state, _ := m.Player(p.AgentID)
		died := state != nil && !state.Alive
		won := p.AgentID == m.WinnerID
		delta := deltas[p.AgentID]
		err := tx.UpdateAgent(p.AgentID, func(a *core.Agent) error {
			a.Matches++
			if won {
				a.Wins++
			} else {
				a.Losses++
			}
			a.Kills += p.Kills
			if died {
				a.Deaths++
			}
			a.Rating += delta
			a.LastActive = now
			return nil
		})
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("update agent %s: %w", p.AgentID, err))
		}
	}
	return deltas, nil
}

// published records metrics and fans out events for a committed resolution.
func (e *Engine) published(matchID string, c *committed) {
	if c == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.Bool("completed", c.result != nil))
	e.ins.ticksResolved.Add(ctx, 1, attrs)
	e.ins.resolveDuration.Record(ctx, float64(c.duration.Microseconds())/1000, attrs)

	e.emit(core.TopicTickResolved, matchID, c.frame)
	if c.result != nil {
		e.ins.matchesCompleted.Add(ctx, 1)
		e.deps.Logger.Info("Match completed", "matchId", matchID, "winner", c.result.Match.WinnerID, "ticks", c.frame.Tick)
		e.emit(core.TopicMatchCompleted, matchID, *c.result)
	}
}

// classify maps store errors onto the API taxonomy.
func (e *Engine) classify(err error) error {
	var apiErr *apierr.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, storage.ErrNotFound):
		return apierr.ErrMatchNotFound
	default:
		return apierr.Internal(err)
	}
}
