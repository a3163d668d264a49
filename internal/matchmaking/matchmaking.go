// Package matchmaking holds agents waiting for a match and forms matches
// from the oldest entries once enough agents are waiting.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/queue"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/pkg/core"
)

// MatchCreator starts a match for a set of agents.
type MatchCreator interface {
	CreateMatch(ctx context.Context, agentIDs []string) (*core.Match, error)
}

// Dependencies holds all dependencies for the queue manager
type Dependencies struct {
	Store           storage.Store
	Engine          MatchCreator
	MinPlayers      int
	MaxPlayers      int
	RequireVerified bool
	Logger          *slog.Logger
	Now             func() time.Time
}

// JoinResult is either a queue position or the match that was just formed.
type JoinResult struct {
	Queued   bool   `json:"queued"`
	Position int    `json:"position,omitempty"`
	Matched  bool   `json:"matched"`
	MatchID  string `json:"matchId,omitempty"`
}

// StatusResult describes where an agent stands.
type StatusResult struct {
	InQueue  bool   `json:"inQueue"`
	Position int    `json:"position,omitempty"`
	Matched  bool   `json:"matched"`
	MatchID  string `json:"matchId,omitempty"`
}

// Manager is the queue manager.
type Manager struct {
	deps    Dependencies
	mu      sync.Mutex
	waiting *queue.Queue[core.QueueEntry]
}

// NewManager creates a queue manager.
func NewManager(deps Dependencies) (*Manager, error) {
	if deps.Store == nil || deps.Engine == nil {
		return nil, errors.New("matchmaking requires a store and an engine")
	}
	if deps.MinPlayers < 2 || deps.MaxPlayers < deps.MinPlayers {
		return nil, fmt.Errorf("invalid lobby size [%d, %d]", deps.MinPlayers, deps.MaxPlayers)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Manager{
		deps:    deps,
		waiting: queue.New[core.QueueEntry](),
	}, nil
}

func byAgent(agentID string) func(core.QueueEntry) bool {
	return func(e core.QueueEntry) bool { return e.AgentID == agentID }
}

// Join queues an agent and forms a match when enough agents are waiting.
// Validation, insertion and match formation happen in one critical section.
func (m *Manager) Join(ctx context.Context, agentID string) (JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.deps.Store.GetAgent(ctx, agentID)
	if errors.Is(err, storage.ErrNotFound) {
		return JoinResult{}, apierr.ErrAgentNotFound
	}
	if err != nil {
		return JoinResult{}, apierr.Internal(err)
	}
	if m.deps.RequireVerified && !agent.Verified {
		return JoinResult{}, apierr.ErrNotVerified
	}
	if m.waiting.IndexFunc(byAgent(agentID)) >= 0 {
		return JoinResult{}, apierr.ErrAlreadyQueued
	}
	active, err := m.deps.Store.ActiveMatchFor(ctx, agentID)
	switch {
	case err == nil:
		return JoinResult{}, apierr.AlreadyInMatch(active.ID)
	case !errors.Is(err, storage.ErrNotFound):
		return JoinResult{}, apierr.Internal(err)
	}

	now := m.deps.Now().UTC()
	m.waiting.Push(core.QueueEntry{AgentID: agentID, JoinedAt: now})
	if err := m.deps.Store.UpdateAgent(ctx, agentID, func(a *core.Agent) error {
		a.LastActive = now
		return nil
	}); err != nil {
		m.deps.Logger.Warn("Failed to touch agent", "agentId", agentID, "error", err)
	}
	m.deps.Logger.Debug("Agent queued", "agentId", agentID, "queueLength", m.waiting.Len())

	if m.waiting.Len() < m.deps.MinPlayers {
		return JoinResult{Queued: true, Position: m.waiting.Len()}, nil
	}

	match, err := m.formMatch(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	if match.IsParticipant(agentID) {
		return JoinResult{Matched: true, MatchID: match.ID}, nil
	}
	return JoinResult{Queued: true, Position: m.waiting.IndexFunc(byAgent(agentID)) + 1}, nil
}

// formMatch pops up to MaxPlayers of the oldest entries into a new match.
// On failure the entries go back to the front of the queue.
func (m *Manager) formMatch(ctx context.Context) (*core.Match, error) {
	entries := m.waiting.PopN(min(m.waiting.Len(), m.deps.MaxPlayers))
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.AgentID
	}

	match, err := m.deps.Engine.CreateMatch(ctx, ids)
	if err != nil {
		m.waiting.PushFront(entries...)
		m.deps.Logger.Error("Failed to form match", "players", ids, "error", err)
		return nil, err
	}
	m.deps.Logger.Info("Match formed", "matchId", match.ID, "players", ids)
	return match, nil
}

// Leave removes an agent from the queue. Leaving when not queued is not an
// error.
func (m *Manager) Leave(ctx context.Context, agentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waiting.RemoveFunc(byAgent(agentID)) > 0 {
		m.deps.Logger.Debug("Agent left queue", "agentId", agentID)
	}
	return nil
}

// Status reports whether an agent is queued or playing.
func (m *Manager) Status(ctx context.Context, agentID string) (StatusResult, error) {
	m.mu.Lock()
	pos := m.waiting.IndexFunc(byAgent(agentID))
	m.mu.Unlock()
	if pos >= 0 {
		return StatusResult{InQueue: true, Position: pos + 1}, nil
	}

	active, err := m.deps.Store.ActiveMatchFor(ctx, agentID)
	switch {
	case err == nil:
		return StatusResult{Matched: true, MatchID: active.ID}, nil
	case errors.Is(err, storage.ErrNotFound):
		return StatusResult{}, nil
	default:
		return StatusResult{}, apierr.Internal(err)
	}
}

// Len is the number of agents waiting.
func (m *Manager) Len() int {
	return m.waiting.Len()
}

// Snapshot returns the waiting entries in queue order.
func (m *Manager) Snapshot() []core.QueueEntry {
	return m.waiting.Snapshot()
}
