// pkg/core/agent.go
package core

import "time"

// DefaultRating is the ELO every agent starts with.
const DefaultRating = 1000

// Agent is a registered bot and its cumulative record.
type Agent struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Token      string            `json:"-"`
	Rating     int               `json:"rating"`
	Wins       int               `json:"wins"`
	Losses     int               `json:"losses"`
	Kills      int               `json:"kills"`
	Deaths     int               `json:"deaths"`
	Matches    int               `json:"matches"`
	Verified   bool              `json:"verified"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	LastActive time.Time         `json:"lastActive"`
}

// WinRate returns wins as a rounded percentage of matches played.
func (a Agent) WinRate() int {
	if a.Matches == 0 {
		return 0
	}
	return int(float64(a.Wins)/float64(a.Matches)*100 + 0.5)
}

// QueueEntry is an agent waiting for a match.
type QueueEntry struct {
	AgentID  string    `json:"agentId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	AgentID string `json:"agentId"`
	Name    string `json:"name"`
	Rating  int    `json:"rating"`
	Wins    int    `json:"wins"`
	Losses  int    `json:"losses"`
	Kills   int    `json:"kills"`
	Matches int    `json:"matches"`
	WinRate int    `json:"winRate"`
}
