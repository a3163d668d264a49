// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/botroyale/gridroyale/internal/apierr"
	"github.com/botroyale/gridroyale/internal/engine"
	"github.com/botroyale/gridroyale/internal/matchmaking"
	"github.com/botroyale/gridroyale/internal/server"
	"github.com/botroyale/gridroyale/pkg/core"
)

// Client talks to a grid royale server on behalf of one agent.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client. apiKey may be empty until Register is called.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIKey returns the bearer token in use.
func (c *Client) APIKey() string {
	return c.apiKey
}

// Healthcheck checks if the server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// do sends a request and decodes a JSON response into out. Error responses
// are decoded into *apierr.Error so callers can match codes with errors.Is.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var e apierr.Error
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &e); err != nil || e.Code == "" {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	e.Kind = kindForStatus(resp.StatusCode)
	return &e
}

func kindForStatus(status int) apierr.Kind {
	switch status {
	case http.StatusBadRequest:
		return apierr.KindValidation
	case http.StatusNotFound:
		return apierr.KindNotFound
	case http.StatusConflict:
		return apierr.KindPrecondition
	case http.StatusUnauthorized:
		return apierr.KindUnauthorized
	default:
		return apierr.KindInternal
	}
}

// IsCode reports whether err is an API error with the given code.
func IsCode(err error, code string) bool {
	var e *apierr.Error
	return errors.As(err, &e) && e.Code == code
}

// Register creates an agent and switches the client to its key.
func (c *Client) Register(ctx context.Context, name, description string) (*core.Agent, error) {
	var res server.RegisterResponse
	body := map[string]string{"name": name}
	if description != "" {
		body["description"] = description
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/agents/register", body, &res); err != nil {
		return nil, err
	}
	c.apiKey = res.APIKey
	return res.Agent, nil
}

// JoinQueue enters the matchmaking queue.
func (c *Client) JoinQueue(ctx context.Context) (matchmaking.JoinResult, error) {
	var res matchmaking.JoinResult
	err := c.do(ctx, http.MethodPost, "/api/v1/grid/queue", nil, &res)
	return res, err
}

// LeaveQueue leaves the matchmaking queue.
func (c *Client) LeaveQueue(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/grid/queue", nil, nil)
}

// QueueStatus reports the agent's queue position or match.
func (c *Client) QueueStatus(ctx context.Context) (matchmaking.StatusResult, error) {
	var res matchmaking.StatusResult
	err := c.do(ctx, http.MethodGet, "/api/v1/grid/queue/status", nil, &res)
	return res, err
}

// GetState returns the agent's view of a match.
func (c *Client) GetState(ctx context.Context, matchID string) (*engine.AgentView, error) {
	var res engine.AgentView
	if err := c.do(ctx, http.MethodGet, "/api/v1/grid/matches/"+url.PathEscape(matchID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitAction sends the agent's action for the current tick.
func (c *Client) SubmitAction(ctx context.Context, matchID string, action core.Action) (engine.SubmitResult, error) {
	var res engine.SubmitResult
	err := c.do(ctx, http.MethodPost, "/api/v1/grid/matches/"+url.PathEscape(matchID)+"/action", action, &res)
	return res, err
}

// Spectate returns the full view of a match.
func (c *Client) Spectate(ctx context.Context, matchID string) (*engine.SpectatorView, error) {
	var res engine.SpectatorView
	if err := c.do(ctx, http.MethodGet, "/api/v1/grid/matches/"+url.PathEscape(matchID)+"/spectate", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListMatches lists active matches.
func (c *Client) ListMatches(ctx context.Context) ([]engine.MatchSummary, error) {
	var res server.MatchesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/grid/matches", nil, &res); err != nil {
		return nil, err
	}
	return res.Matches, nil
}

// Leaderboard returns the top agents. A zero limit uses the server default.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]core.LeaderboardEntry, error) {
	path := "/api/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var res server.LeaderboardResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Leaderboard, nil
}
