package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/botroyale/gridroyale/internal/api"
	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/engine"
	"github.com/botroyale/gridroyale/pkg/core"
)

const maxNameAttempts = 5

// Bot is one filler agent that queues, plays random legal actions and
// requeues when its match ends.
type Bot struct {
	client *api.Client
	name   string
	poll   time.Duration
	rng    *rand.Rand
	log    *slog.Logger
}

// NewBot creates a bot against serverURL. It registers on first Run.
func NewBot(serverURL, name string, poll time.Duration, seed uint64, logger *slog.Logger) *Bot {
	return &Bot{
		client: api.New(serverURL, ""),
		name:   name,
		poll:   poll,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:    logger.With("bot", name),
	}
}

// register picks a free name, appending a suffix on collisions.
func (b *Bot) register(ctx context.Context) error {
	name := b.name
	for range maxNameAttempts {
		agent, err := b.client.Register(ctx, name, "random filler bot")
		if err == nil {
			b.name = agent.Name
			b.log = b.log.With("agentId", agent.ID)
			b.log.Info("Registered")
			return nil
		}
		if !api.IsCode(err, apierr.CodeNameTaken) {
			return err
		}
		name = fmt.Sprintf("%s-%04d", b.name, b.rng.IntN(10000))
	}
	return fmt.Errorf("no free name for %s after %d attempts", b.name, maxNameAttempts)
}

// Run plays until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.register(ctx); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	defer func() {
		_ = b.client.LeaveQueue(context.Background())
	}()

	for ctx.Err() == nil {
		matchID, err := b.findMatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.log.Warn("Matchmaking failed", "error", err)
			b.sleep(ctx)
			continue
		}
		b.play(ctx, matchID)
	}
	return nil
}

// findMatch joins the queue and polls until a match is assigned.
func (b *Bot) findMatch(ctx context.Context) (string, error) {
	res, err := b.client.JoinQueue(ctx)
	switch {
	case err == nil && res.Matched:
		return res.MatchID, nil
	case err == nil:
		b.log.Debug("Queued", "position", res.Position)
	case api.IsCode(err, apierr.CodeAlreadyInMatch):
		return apierr.From(err).MatchID, nil
	case api.IsCode(err, apierr.CodeAlreadyQueued):
	default:
		return "", err
	}

	for {
		if !b.sleep(ctx) {
			return "", ctx.Err()
		}
		st, err := b.client.QueueStatus(ctx)
		if err != nil {
			return "", err
		}
		if st.Matched {
			return st.MatchID, nil
		}
		if !st.InQueue {
			return "", fmt.Errorf("dropped from queue")
		}
	}
}

// play submits one action per tick until the match completes.
func (b *Bot) play(ctx context.Context, matchID string) {
	log := b.log.With("matchId", matchID)
	log.Info("Match found")

	for b.sleep(ctx) {
		view, err := b.client.GetState(ctx, matchID)
		if err != nil {
			log.Warn("Failed to get state", "error", err)
			if api.IsCode(err, apierr.CodeMatchNotFound) || api.IsCode(err, apierr.CodeNotAParticipant) {
				return
			}
			continue
		}
		if view.Status == core.MatchCompleted {
			log.Info("Match over", "placement", view.You.Placement, "kills", view.You.Kills, "ticks", view.Tick)
			return
		}
		if !view.You.Alive || view.YourActionSubmitted {
			continue
		}

		action := ChooseAction(b.rng, view)
		if _, err := b.client.SubmitAction(ctx, matchID, action); err != nil {
			switch {
			case api.IsCode(err, apierr.CodeDuplicateSubmission),
				api.IsCode(err, apierr.CodeAlreadyEliminated),
				api.IsCode(err, apierr.CodeMatchNotActive):
				log.Debug("Action not taken", "error", err)
			default:
				log.Warn("Failed to submit action", "error", err)
			}
		}
	}
}

// sleep waits one poll interval and reports whether ctx is still live.
func (b *Bot) sleep(ctx context.Context) bool {
	t := time.NewTimer(b.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ChooseAction picks a random move that stays inside the zone and shoots at
// an opponent sharing a row or column, if any.
func ChooseAction(rng *rand.Rand, view *engine.AgentView) core.Action {
	me := view.You.Position

	var safe []core.Direction
	for _, d := range core.Moves {
		if view.Zone.Contains(me.Step(d, view.GridSize)) {
			safe = append(safe, d)
		}
	}
	if len(safe) == 0 {
		safe = toward(me, view.Zone)
	}
	action := core.Action{Move: safe[rng.IntN(len(safe))]}

	for _, other := range view.Bots {
		if !other.Alive {
			continue
		}
		if d, ok := aligned(me, other.Position); ok {
			action.Shoot = &d
			break
		}
	}
	return action
}

// toward returns moves that bring p closer to the zone.
func toward(p core.Position, z core.Zone) []core.Direction {
	var out []core.Direction
	if p.X < z.Min {
		out = append(out, core.East)
	}
	if p.X > z.Max {
		out = append(out, core.West)
	}
	if p.Y < z.Min {
		out = append(out, core.North)
	}
	if p.Y > z.Max {
		out = append(out, core.South)
	}
	if len(out) == 0 {
		out = append(out, core.Stay)
	}
	return out
}

// aligned returns the shoot direction from p to q when they share an axis.
func aligned(p, q core.Position) (core.Direction, bool) {
	switch {
	case p == q:
		return "", false
	case p.X == q.X && q.Y > p.Y:
		return core.North, true
	case p.X == q.X:
		return core.South, true
	case p.Y == q.Y && q.X > p.X:
		return core.East, true
	case p.Y == q.Y:
		return core.West, true
	}
	return "", false
}
