// internal/api/client_test.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/config"
	"github.com/botroyale/gridroyale/internal/engine"
	"github.com/botroyale/gridroyale/internal/matchmaking"
	"github.com/botroyale/gridroyale/internal/registry"
	"github.com/botroyale/gridroyale/internal/royale"
	"github.com/botroyale/gridroyale/internal/server"
	"github.com/botroyale/gridroyale/internal/storage/memory"
	"github.com/botroyale/gridroyale/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:8080", "br_secret")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected baseURL=http://localhost:8080, got %s", c.baseURL)
	}
	if c.APIKey() != "br_secret" {
		t.Errorf("expected apiKey=br_secret, got %s", c.APIKey())
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:8080/", "")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := New(srv.URL, "").Healthcheck(context.Background()); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	c := New("http://localhost:59999", "") // unlikely to be listening
	if err := c.Healthcheck(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := New(srv.URL, "").Healthcheck(context.Background()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestSubmitAction_SendsBearerAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/v1/grid/matches/m1/action" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer br_key" {
			t.Errorf("expected bearer header, got %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["move"] != "north" || body["shoot"] != "east" {
			t.Errorf("unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted":true,"tickResolved":false,"tick":4}`))
	}))
	defer srv.Close()

	shoot := core.East
	res, err := New(srv.URL, "br_key").SubmitAction(context.Background(), "m1", core.Action{Move: core.North, Shoot: &shoot})
	if err != nil {
		t.Fatalf("SubmitAction failed: %v", err)
	}
	if !res.Accepted || res.Tick != 4 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestErrorResponseIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"ALREADY_IN_MATCH","message":"agent is already in an active match","matchId":"m9"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "br_key").JoinQueue(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsCode(err, apierr.CodeAlreadyInMatch) {
		t.Errorf("expected ALREADY_IN_MATCH, got %v", err)
	}
	e := apierr.From(err)
	if e.MatchID != "m9" {
		t.Errorf("expected matchId m9, got %q", e.MatchID)
	}
	if e.Kind != apierr.KindPrecondition {
		t.Errorf("expected precondition kind, got %v", e.Kind)
	}
}

func TestErrorResponseWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").ListMatches(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if IsCode(err, apierr.CodeInternal) {
		t.Error("plain text errors should not decode as API errors")
	}
}

func TestLeaderboard_Limit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("expected limit=5, got %q", got)
		}
		_, _ = w.Write([]byte(`{"leaderboard":[{"rank":1,"agentId":"a","name":"alpha","rating":1025}]}`))
	}))
	defer srv.Close()

	entries, err := New(srv.URL, "").Leaderboard(context.Background(), 5)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "alpha" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

// newGameServer runs the real HTTP binding over an in-memory store.
func newGameServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.New(config.MemoryConfig{})
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	reg := registry.New(registry.Dependencies{Store: store})
	rules := royale.DefaultRules()
	rules.MinPlayers = 2
	eng, err := engine.New(engine.Dependencies{Store: store, Rules: rules, Rand: royale.NewRand(5), Directory: reg})
	if err != nil {
		t.Fatal(err)
	}
	queue, err := matchmaking.NewManager(matchmaking.Dependencies{Store: store, Engine: eng, MinPlayers: 2, MaxPlayers: 2})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(server.New(server.Dependencies{Registry: reg, Queue: queue, Engine: eng}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_AgainstServer(t *testing.T) {
	ts := newGameServer(t)
	ctx := context.Background()

	a, b := New(ts.URL, ""), New(ts.URL, "")
	agentA, err := a.Register(ctx, "alpha", "random walker")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if a.APIKey() == "" {
		t.Fatal("Register did not store the api key")
	}
	if agentA.Metadata["description"] != "random walker" {
		t.Errorf("description not kept: %v", agentA.Metadata)
	}
	if _, err := b.Register(ctx, "bravo", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := New(ts.URL, "").Register(ctx, "alpha", ""); !IsCode(err, apierr.CodeNameTaken) {
		t.Errorf("expected NAME_TAKEN, got %v", err)
	}

	if res, err := a.JoinQueue(ctx); err != nil || !res.Queued {
		t.Fatalf("JoinQueue: %+v, %v", res, err)
	}
	if st, err := a.QueueStatus(ctx); err != nil || !st.InQueue {
		t.Fatalf("QueueStatus: %+v, %v", st, err)
	}
	res, err := b.JoinQueue(ctx)
	if err != nil || !res.Matched {
		t.Fatalf("JoinQueue: %+v, %v", res, err)
	}

	matches, err := a.ListMatches(ctx)
	if err != nil || len(matches) != 1 {
		t.Fatalf("ListMatches: %+v, %v", matches, err)
	}

	view, err := a.GetState(ctx, res.MatchID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if view.You.ID != agentA.ID || view.Tick != 1 {
		t.Errorf("unexpected view %+v", view)
	}

	if _, err := a.SubmitAction(ctx, res.MatchID, core.Action{Move: "sideways"}); !IsCode(err, apierr.CodeInvalidMove) {
		t.Errorf("expected INVALID_MOVE, got %v", err)
	}
	if _, err := a.SubmitAction(ctx, res.MatchID, core.Action{Move: core.Stay}); err != nil {
		t.Fatalf("SubmitAction failed: %v", err)
	}
	sub, err := b.SubmitAction(ctx, res.MatchID, core.Action{Move: core.Stay})
	if err != nil {
		t.Fatalf("SubmitAction failed: %v", err)
	}
	if !sub.TickResolved || sub.Tick != 2 {
		t.Errorf("expected tick resolved to 2, got %+v", sub)
	}

	sv, err := New(ts.URL, "").Spectate(ctx, res.MatchID)
	if err != nil {
		t.Fatalf("Spectate failed: %v", err)
	}
	if len(sv.Players) != 2 || sv.Tick != 2 {
		t.Errorf("unexpected spectator view %+v", sv)
	}

	if err := a.LeaveQueue(ctx); err != nil {
		t.Errorf("LeaveQueue failed: %v", err)
	}
	board, err := a.Leaderboard(ctx, 0)
	if err != nil || len(board) != 2 {
		t.Errorf("Leaderboard: %+v, %v", board, err)
	}
}
