// Package registry owns agent identity: registration, bearer token
// authentication, verification and the leaderboard.
package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/cache"
	"github.com/botroyale/gridroyale/internal/dispatcher"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/pkg/core"
	"github.com/google/uuid"
)

const (
	TokenPrefix = "br_"
	tokenLength = 32
	tokenChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 100
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,32}$`)

// ErrInvalidName is returned for names outside [A-Za-z0-9_.-]{1,32}.
var ErrInvalidName = apierr.ErrBadRequest.Withf("name must be 1-32 characters of letters, digits, '_', '-' or '.'")

// Emitter publishes post-commit notifications.
type Emitter interface {
	Emit(e dispatcher.Event)
}

// Dependencies holds all dependencies for the registry
type Dependencies struct {
	Store  storage.Store
	Cache  *cache.AgentCache
	Events Emitter
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Registry manages agents.
type Registry struct {
	deps Dependencies
}

// New creates a registry, filling in defaults for optional dependencies.
func New(deps Dependencies) *Registry {
	if deps.Cache == nil {
		deps.Cache = cache.NewAgentCache()
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
	return &Registry{deps: deps}
}

// GenerateToken returns a fresh credential: the br_ prefix followed by 32
// random alphanumerics.
func GenerateToken() (string, error) {
	var sb strings.Builder
	sb.Grow(len(TokenPrefix) + tokenLength)
	sb.WriteString(TokenPrefix)
	alphabet := big.NewInt(int64(len(tokenChars)))
	for range tokenLength {
		n, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		sb.WriteByte(tokenChars[n.Int64()])
	}
	return sb.String(), nil
}

// Register creates an agent. The returned agent carries its token; this is
// the only time the token is handed out.
func (r *Registry) Register(ctx context.Context, name string, metadata map[string]string) (*core.Agent, error) {
	name = strings.TrimSpace(name)
	if !namePattern.MatchString(name) {
		return nil, ErrInvalidName
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, apierr.Internal(err)
	}

	now := r.deps.Now().UTC()
	agent := &core.Agent{
		ID:         r.deps.NewID(),
		Name:       name,
		Token:      token,
		Rating:     core.DefaultRating,
		Metadata:   metadata,
		CreatedAt:  now,
		LastActive: now,
	}
	if err := r.deps.Store.CreateAgent(ctx, agent); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, apierr.ErrNameTaken
		}
		return nil, apierr.Internal(fmt.Errorf("failed to create agent: %w", err))
	}

	r.deps.Cache.Add(agent.ID, agent.Name, agent.Token)
	r.deps.Logger.Info("Agent registered", "agentId", agent.ID, "name", agent.Name)
	if r.deps.Events != nil {
		r.deps.Events.Emit(dispatcher.Event{Type: core.TopicAgentRegistered, Payload: *agent, Timestamp: now})
	}
	return agent, nil
}

// Authenticate resolves a bearer token to its agent.
func (r *Registry) Authenticate(ctx context.Context, token string) (*core.Agent, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, apierr.ErrUnauthorized
	}

	if id, ok := r.deps.Cache.AgentForToken(token); ok {
		return r.Get(ctx, id)
	}

	agent, err := r.deps.Store.GetAgentByToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierr.ErrUnauthorized
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	r.deps.Cache.Add(agent.ID, agent.Name, agent.Token)
	return agent, nil
}

// Get returns the agent with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*core.Agent, error) {
	agent, err := r.deps.Store.GetAgent(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierr.ErrAgentNotFound
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return agent, nil
}

// Verify marks an agent as verified. Verifying twice is a no-op.
func (r *Registry) Verify(ctx context.Context, id string) (*core.Agent, error) {
	var out core.Agent
	err := r.deps.Store.UpdateAgent(ctx, id, func(a *core.Agent) error {
		a.Verified = true
		out = *a
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierr.ErrAgentNotFound
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	r.deps.Logger.Info("Agent verified", "agentId", id)
	return &out, nil
}

// Names returns display names for the given ids. Unknown ids map to
// themselves.
func (r *Registry) Names(ctx context.Context, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := r.deps.Cache.Name(id); ok {
			out[id] = name
			continue
		}
		agent, err := r.deps.Store.GetAgent(ctx, id)
		if err != nil {
			r.deps.Logger.Debug("Name lookup failed", "agentId", id, "error", err)
			out[id] = id
			continue
		}
		r.deps.Cache.Add(agent.ID, agent.Name, "")
		out[id] = agent.Name
	}
	return out
}

// Leaderboard returns the top agents by rating. limit is clamped to
// [1, MaxLeaderboardLimit]; zero selects the default.
func (r *Registry) Leaderboard(ctx context.Context, limit int) ([]core.LeaderboardEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultLeaderboardLimit
	case limit > MaxLeaderboardLimit:
		limit = MaxLeaderboardLimit
	}

	agents, err := r.deps.Store.TopAgents(ctx, limit)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	out := make([]core.LeaderboardEntry, len(agents))
	for i, a := range agents {
		out[i] = core.LeaderboardEntry{
			Rank:    i + 1,
			AgentID: a.ID,
			Name:    a.Name,
			Rating:  a.Rating,
			Wins:    a.Wins,
			Losses:  a.Losses,
			Kills:   a.Kills,
			Matches: a.Matches,
			WinRate: a.WinRate(),
		}
	}
	return out, nil
}
