// internal/storage/memory/memory.go
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/botroyale/gridroyale/internal/config"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/pkg/core"
)

// matchRecord groups a match with its history. lock is the match's critical
// section; match and frames are only replaced while holding both lock and
// the backend's write lock.
type matchRecord struct {
	lock   sync.Mutex
	match  *core.Match
	frames []core.TickFrame
}

// Backend keeps agents and matches in process memory.
type Backend struct {
	cfg config.MemoryConfig

	agents  map[string]*core.Agent
	byToken map[string]string
	byName  map[string]string
	matches map[string]*matchRecord
	active  map[string]string // agentID -> unfinished matchID

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		agents:  make(map[string]*core.Agent),
		byToken: make(map[string]string),
		byName:  make(map[string]string),
		matches: make(map[string]*matchRecord),
		active:  make(map[string]string),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

func cloneAgent(a *core.Agent) *core.Agent {
	c := *a
	c.Metadata = maps.Clone(a.Metadata)
	return &c
}

// CreateAgent stores a new agent. Names and tokens are unique.
func (b *Backend) CreateAgent(ctx context.Context, a *core.Agent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.agents[a.ID]; ok {
		return fmt.Errorf("agent %s: %w", a.ID, storage.ErrConflict)
	}
	if _, ok := b.byName[a.Name]; ok {
		return fmt.Errorf("agent name %q: %w", a.Name, storage.ErrConflict)
	}
	if _, ok := b.byToken[a.Token]; ok {
		return fmt.Errorf("agent token: %w", storage.ErrConflict)
	}

	b.agents[a.ID] = cloneAgent(a)
	b.byName[a.Name] = a.ID
	b.byToken[a.Token] = a.ID
	return nil
}

// GetAgent returns a copy of the agent.
func (b *Backend) GetAgent(ctx context.Context, id string) (*core.Agent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getAgentLocked(id)
}

func (b *Backend) getAgentLocked(id string) (*core.Agent, error) {
	a, ok := b.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, storage.ErrNotFound)
	}
	return cloneAgent(a), nil
}

// GetAgentByToken looks an agent up by credential.
func (b *Backend) GetAgentByToken(ctx context.Context, token string) (*core.Agent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byToken[token]
	if !ok {
		return nil, fmt.Errorf("agent token: %w", storage.ErrNotFound)
	}
	return b.getAgentLocked(id)
}

// UpdateAgent applies mutate to the stored agent atomically.
func (b *Backend) UpdateAgent(ctx context.Context, id string, mutate func(*core.Agent) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applyAgentLocked(id, mutate)
}

func (b *Backend) applyAgentLocked(id string, mutate func(*core.Agent) error) error {
	a, err := b.getAgentLocked(id)
	if err != nil {
		return err
	}
	if err := mutate(a); err != nil {
		return err
	}
	a.ID = id
	a.Name = b.agents[id].Name
	a.Token = b.agents[id].Token
	b.agents[id] = a
	return nil
}

// TopAgents returns agents ordered by rating, then wins, then name.
func (b *Backend) TopAgents(ctx context.Context, limit int) ([]core.Agent, error) {
	b.mu.RLock()
	out := make([]core.Agent, 0, len(b.agents))
	for _, a := range b.agents {
		out = append(out, *cloneAgent(a))
	}
	b.mu.RUnlock()

	slices.SortFunc(out, func(x, y core.Agent) int {
		if c := cmp.Compare(y.Rating, x.Rating); c != 0 {
			return c
		}
		if c := cmp.Compare(y.Wins, x.Wins); c != 0 {
			return c
		}
		return cmp.Compare(x.Name, y.Name)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateMatch stores a new match and marks its players as busy.
func (b *Backend) CreateMatch(ctx context.Context, m *core.Match) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.matches[m.ID]; ok {
		return fmt.Errorf("match %s: %w", m.ID, storage.ErrConflict)
	}
	b.matches[m.ID] = &matchRecord{match: m.Clone()}
	if !m.Finished() {
		for _, id := range m.Players {
			b.active[id] = m.ID
		}
	}
	return nil
}

// GetMatch returns a copy of the match.
func (b *Backend) GetMatch(ctx context.Context, id string) (*core.Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, storage.ErrNotFound)
	}
	return rec.match.Clone(), nil
}

// ListMatches returns every match with the given status, oldest first.
func (b *Backend) ListMatches(ctx context.Context, status core.MatchStatus) ([]core.Match, error) {
	b.mu.RLock()
	var out []core.Match
	for _, rec := range b.matches {
		if rec.match.Status == status {
			out = append(out, *rec.match.Clone())
		}
	}
	b.mu.RUnlock()

	slices.SortFunc(out, func(x, y core.Match) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return out, nil
}

// ActiveMatchFor returns the unfinished match the agent plays in.
func (b *Backend) ActiveMatchFor(ctx context.Context, agentID string) (*core.Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.active[agentID]
	if !ok {
		return nil, fmt.Errorf("active match for %s: %w", agentID, storage.ErrNotFound)
	}
	return b.matches[id].match.Clone(), nil
}

// Frames returns the most recent history frames of a match, oldest first.
func (b *Backend) Frames(ctx context.Context, matchID string, limit int) ([]core.TickFrame, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, storage.ErrNotFound)
	}
	frames := rec.frames
	if limit > 0 && len(frames) > limit {
		frames = frames[len(frames)-limit:]
	}
	return slices.Clone(frames), nil
}

type agentMutation struct {
	id     string
	mutate func(*core.Agent) error
}

// memTx stages writes until the lock callback returns.
type memTx struct {
	b         *Backend
	mutations []agentMutation
	frames    []core.TickFrame
}

func (t *memTx) GetAgent(id string) (*core.Agent, error) {
	t.b.mu.RLock()
	defer t.b.mu.RUnlock()
	return t.b.getAgentLocked(id)
}

func (t *memTx) UpdateAgent(id string, mutate func(*core.Agent) error) error {
	t.b.mu.RLock()
	_, ok := t.b.agents[id]
	t.b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("agent %s: %w", id, storage.ErrNotFound)
	}
	t.mutations = append(t.mutations, agentMutation{id: id, mutate: mutate})
	return nil
}

func (t *memTx) AppendFrame(f *core.TickFrame) error {
	t.frames = append(t.frames, *f)
	return nil
}

// WithMatchLock serialises fn against every other locked call on the same match.
func (b *Backend) WithMatchLock(ctx context.Context, matchID string, fn func(tx storage.MatchTx, m *core.Match) error) error {
	b.mu.RLock()
	rec, ok := b.matches[matchID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("match %s: %w", matchID, storage.ErrNotFound)
	}

	rec.lock.Lock()
	defer rec.lock.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	working := rec.match.Clone()
	b.mu.RUnlock()

	tx := &memTx{b: b}
	if err := fn(tx, working); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// apply agent writes to copies first so a failing mutation commits nothing
	staged := make(map[string]*core.Agent)
	for _, mut := range tx.mutations {
		a, ok := staged[mut.id]
		if !ok {
			cur, err := b.getAgentLocked(mut.id)
			if err != nil {
				return err
			}
			a = cur
			staged[mut.id] = a
		}
		if err := mut.mutate(a); err != nil {
			return fmt.Errorf("updating agent %s: %w", mut.id, err)
		}
	}
	for id, a := range staged {
		a.ID = id
		a.Name = b.agents[id].Name
		a.Token = b.agents[id].Token
		b.agents[id] = a
	}

	working.ID = matchID
	rec.match = working.Clone()
	rec.frames = append(rec.frames, tx.frames...)
	if keep := b.cfg.MaxFrames; keep > 0 && len(rec.frames) > keep {
		rec.frames = slices.Clone(rec.frames[len(rec.frames)-keep:])
	}
	if working.Finished() {
		for _, id := range working.Players {
			if b.active[id] == matchID {
				delete(b.active, id)
			}
		}
	}
	return nil
}
