package server

import (
	"net/http"
	"strconv"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/engine"
	"github.com/botroyale/gridroyale/internal/parser"
	"github.com/botroyale/gridroyale/pkg/core"
	"github.com/gorilla/mux"
)

// RegisterResponse is returned once at registration; the key is not
// retrievable afterwards.
type RegisterResponse struct {
	Message string      `json:"message"`
	Agent   *core.Agent `json:"agent"`
	APIKey  string      `json:"apiKey"`
}

// AgentResponse wraps a single agent.
type AgentResponse struct {
	Agent *core.Agent `json:"agent"`
}

// LeaveResponse confirms a queue leave.
type LeaveResponse struct {
	Left bool `json:"left"`
}

// MatchesResponse lists active matches.
type MatchesResponse struct {
	Matches []engine.MatchSummary `json:"matches"`
}

// HistoryResponse carries the most recent tick frames, oldest first.
type HistoryResponse struct {
	MatchID string           `json:"matchId"`
	Frames  []core.TickFrame `json:"frames"`
}

// LeaderboardResponse carries ranked agents.
type LeaderboardResponse struct {
	Leaderboard []core.LeaderboardEntry `json:"leaderboard"`
}

func badRequest(err error) *apierr.Error {
	return apierr.ErrBadRequest.Withf("%v", err)
}

// intParam reads an optional non-negative integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apierr.ErrBadRequest.Withf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeError(w, apierr.Internal(nil).Withf("status monitor not configured"), http.StatusServiceUnavailable)
		return
	}
	st, err := s.deps.Status.GetStatus(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := parser.DecodeRegister(r.Body)
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	agent, err := s.deps.Registry.Register(r.Context(), req.Name, req.Metadata)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message: "Agent registered. Store the apiKey; it is shown only once.",
		Agent:   agent,
		APIKey:  agent.Token,
	})
}

// isAdmin reports whether the request carries the configured admin key. An
// empty key disables admin routes.
func (s *Server) isAdmin(r *http.Request) bool {
	return s.deps.AdminKey != "" && r.Header.Get(AdminKeyHeader) == s.deps.AdminKey
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		s.fail(w, r, apierr.ErrUnauthorized)
		return
	}
	req, err := parser.DecodeVerify(r.Body)
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}

	id := req.AgentID
	if id == "" {
		agent, err := s.deps.Registry.Authenticate(r.Context(), req.Token)
		if err != nil {
			s.fail(w, r, apierr.ErrAgentNotFound)
			return
		}
		id = agent.ID
	}
	agent, err := s.deps.Registry.Verify(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AgentResponse{Agent: agent})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.deps.Registry.Leaderboard(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Leaderboard: entries})
}

func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	agent := agentFrom(r.Context())
	res, err := s.deps.Queue.Join(r.Context(), agent.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	agent := agentFrom(r.Context())
	if err := s.deps.Queue.Leave(r.Context(), agent.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveResponse{Left: true})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	agent := agentFrom(r.Context())
	res, err := s.deps.Queue.Status(r.Context(), agent.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.deps.Engine.ListActive(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if matches == nil {
		matches = []engine.MatchSummary{}
	}
	writeJSON(w, http.StatusOK, MatchesResponse{Matches: matches})
}

// handleMatch returns the participant view with a bearer token and the
// spectator view without one.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]
	if _, ok := bearerToken(r); !ok {
		s.spectate(w, r, matchID)
		return
	}

	agent, err := s.authenticate(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.deps.Engine.GetState(r.Context(), agent.ID, matchID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSpectate(w http.ResponseWriter, r *http.Request) {
	s.spectate(w, r, mux.Vars(r)["id"])
}

func (s *Server) spectate(w http.ResponseWriter, r *http.Request, matchID string) {
	view, err := s.deps.Engine.Spectate(r.Context(), matchID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]
	limit, err := intParam(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	frames, err := s.deps.Engine.History(r.Context(), matchID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{MatchID: matchID, Frames: frames})
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	agent := agentFrom(r.Context())
	action, err := parser.DecodeAction(r.Body)
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	res, err := s.deps.Engine.SubmitAction(r.Context(), agent.ID, mux.Vars(r)["id"], action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleForceResolve(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		s.fail(w, r, apierr.ErrUnauthorized)
		return
	}
	res, err := s.deps.Engine.ForceResolve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
