// Package server exposes the registry, queue and engine over HTTP/JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/engine"
	"github.com/botroyale/gridroyale/internal/matchmaking"
	"github.com/botroyale/gridroyale/internal/monitor"
	"github.com/botroyale/gridroyale/pkg/core"
	"github.com/gorilla/mux"
)

// AdminKeyHeader carries the operator key for admin routes.
const AdminKeyHeader = "X-Admin-Key"

// Registry is the agent registry surface used by the routes.
type Registry interface {
	Register(ctx context.Context, name string, metadata map[string]string) (*core.Agent, error)
	Authenticate(ctx context.Context, token string) (*core.Agent, error)
	Verify(ctx context.Context, id string) (*core.Agent, error)
	Leaderboard(ctx context.Context, limit int) ([]core.LeaderboardEntry, error)
}

// Queue is the matchmaking surface used by the routes.
type Queue interface {
	Join(ctx context.Context, agentID string) (matchmaking.JoinResult, error)
	Leave(ctx context.Context, agentID string) error
	Status(ctx context.Context, agentID string) (matchmaking.StatusResult, error)
}

// Engine is the match engine surface used by the routes.
type Engine interface {
	SubmitAction(ctx context.Context, agentID, matchID string, action core.Action) (engine.SubmitResult, error)
	GetState(ctx context.Context, agentID, matchID string) (*engine.AgentView, error)
	Spectate(ctx context.Context, matchID string) (*engine.SpectatorView, error)
	ListActive(ctx context.Context) ([]engine.MatchSummary, error)
	History(ctx context.Context, matchID string, limit int) ([]core.TickFrame, error)
	ForceResolve(ctx context.Context, matchID string) (engine.ResolveResult, error)
}

// StatusReporter reports server health for /api/v1/status.
type StatusReporter interface {
	GetStatus(ctx context.Context) (monitor.Status, error)
}

// Dependencies holds all dependencies for the HTTP server
type Dependencies struct {
	Registry Registry
	Queue    Queue
	Engine   Engine
	// Status is optional; /api/v1/status answers 503 without it.
	Status StatusReporter
	// AdminKey guards verification. Verification is disabled when empty.
	AdminKey string
	Logger   *slog.Logger
}

// Server routes HTTP requests to the game services.
type Server struct {
	deps   Dependencies
	router *mux.Router
}

type ctxKey int

const agentKey ctxKey = iota

// New creates a server and registers all routes.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, router: mux.NewRouter()}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, apierr.ErrBadRequest.Withf("unknown route"), http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, apierr.ErrBadRequest.Withf("method not allowed"), http.StatusMethodNotAllowed)
	})

	r.HandleFunc("/healthcheck", s.handleHealthcheck).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/agents/register", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/agents/verify", s.handleVerify).Methods(http.MethodPost)
	v1.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	v1.HandleFunc("/grid/matches", s.handleListMatches).Methods(http.MethodGet)
	v1.HandleFunc("/grid/matches/{id}", s.handleMatch).Methods(http.MethodGet)
	v1.HandleFunc("/grid/matches/{id}/spectate", s.handleSpectate).Methods(http.MethodGet)
	v1.HandleFunc("/grid/matches/{id}/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/grid/matches/{id}/resolve", s.handleForceResolve).Methods(http.MethodPost)

	// Agent routes - bearer token required
	agent := v1.NewRoute().Subrouter()
	agent.Use(s.requireAgent)
	agent.HandleFunc("/grid/queue", s.handleJoinQueue).Methods(http.MethodPost)
	agent.HandleFunc("/grid/queue", s.handleLeaveQueue).Methods(http.MethodDelete)
	agent.HandleFunc("/grid/queue/status", s.handleQueueStatus).Methods(http.MethodGet)
	agent.HandleFunc("/grid/matches/{id}/action", s.handleSubmitAction).Methods(http.MethodPost)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.deps.Logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

func (s *Server) authenticate(r *http.Request) (*core.Agent, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, apierr.ErrUnauthorized
	}
	return s.deps.Registry.Authenticate(r.Context(), token)
}

func (s *Server) requireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, err := s.authenticate(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), agentKey, agent)))
	})
}

// agentFrom returns the authenticated agent stored by requireAgent.
func agentFrom(ctx context.Context) *core.Agent {
	agent, _ := ctx.Value(agentKey).(*core.Agent)
	return agent
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes e as {code, message, matchId}. status overrides the
// kind's mapping when non-zero.
func writeError(w http.ResponseWriter, e *apierr.Error, status int) {
	if status == 0 {
		status = e.Kind.HTTPStatus()
	}
	writeJSON(w, status, e)
}

// fail maps err onto the API taxonomy and writes it. Internal errors are
// logged and their cause is not exposed. Nothing is written once the client
// has gone away.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	e := apierr.From(err)
	if e.Kind == apierr.KindInternal {
		s.deps.Logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, e, 0)
}
