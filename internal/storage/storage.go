// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/botroyale/gridroyale/pkg/core"
)

var (
	// ErrNotFound is returned when an agent or match does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique name or token is already taken.
	ErrConflict = errors.New("conflict")
)

// Store is the interface all storage implementations must satisfy.
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	// Agents
	CreateAgent(ctx context.Context, a *core.Agent) error
	GetAgent(ctx context.Context, id string) (*core.Agent, error)
	GetAgentByToken(ctx context.Context, token string) (*core.Agent, error)
	UpdateAgent(ctx context.Context, id string, mutate func(*core.Agent) error) error
	TopAgents(ctx context.Context, limit int) ([]core.Agent, error)

	// Matches
	CreateMatch(ctx context.Context, m *core.Match) error
	GetMatch(ctx context.Context, id string) (*core.Match, error)
	ListMatches(ctx context.Context, status core.MatchStatus) ([]core.Match, error)
	ActiveMatchFor(ctx context.Context, agentID string) (*core.Match, error)
	Frames(ctx context.Context, matchID string, limit int) ([]core.TickFrame, error)

	// WithMatchLock runs fn with exclusive access to one match. fn receives a
	// working copy; when fn returns nil the copy and every write made through
	// tx are committed together, otherwise nothing is.
	WithMatchLock(ctx context.Context, matchID string, fn func(tx MatchTx, m *core.Match) error) error
}

// MatchTx is the write surface available inside WithMatchLock.
type MatchTx interface {
	GetAgent(id string) (*core.Agent, error)
	UpdateAgent(id string, mutate func(*core.Agent) error) error
	AppendFrame(f *core.TickFrame) error
}
