package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// DatabaseModels is the list of structs that represent tables in the database schema
var DatabaseModels = []interface{}{
	&Agent{},
	&Match{},
	&MatchPlayer{},
	&TickFrame{},
}

////////////////////////
// AGENTS
////////////////////////

// Agent is a registered bot with its cumulative record
type Agent struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	Name       string         `json:"name" gorm:"size:64;uniqueIndex:idx_agent_name"`
	Token      string         `json:"-" gorm:"size:80;uniqueIndex:idx_agent_token"`
	Rating     int            `json:"rating" gorm:"index:idx_agent_rating"`
	Wins       int            `json:"wins"`
	Losses     int            `json:"losses"`
	Kills      int            `json:"kills"`
	Deaths     int            `json:"deaths"`
	Matches    int            `json:"matches"`
	Verified   bool           `json:"verified"`
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastActive time.Time      `json:"lastActive"`
}

func (*Agent) TableName() string {
	return "agents"
}

////////////////////////
// MATCHES
////////////////////////

// Match is the persisted state of one grid royale game. Per-player state
// lives in MatchPlayer rows; variable-shape fields are stored as JSON.
type Match struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	Status         string         `json:"status" gorm:"size:16;index:idx_match_status"`
	GridSize       int            `json:"gridSize"`
	Tick           int            `json:"tick"`
	MaxTicks       int            `json:"maxTicks"`
	ZoneMin        int            `json:"zoneMin"`
	ZoneMax        int            `json:"zoneMax"`
	PendingActions datatypes.JSON `json:"pendingActions"`
	LastTickEvents datatypes.JSON `json:"lastTickEvents"`
	WinnerID       string         `json:"winnerId" gorm:"size:36"`
	Placements     datatypes.JSON `json:"placements"`
	CreatedAt      time.Time      `json:"createdAt" gorm:"index:idx_match_created"`
	StartedAt      time.Time      `json:"startedAt"`
	TickStartedAt  time.Time      `json:"tickStartedAt"`
	CompletedAt    sql.NullTime   `json:"completedAt"`
	Players        []MatchPlayer  `json:"players" gorm:"foreignKey:MatchID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (*Match) TableName() string {
	return "matches"
}

// MatchPlayer is one participant's in-match state. Seat keeps the
// participant order the resolver depends on.
type MatchPlayer struct {
	MatchID        string `json:"matchId" gorm:"primaryKey;size:36"`
	AgentID        string `json:"agentId" gorm:"primaryKey;size:36;index:idx_match_player_agent"`
	Seat           int    `json:"seat"`
	X              int    `json:"x"`
	Y              int    `json:"y"`
	HP             int    `json:"hp"`
	Kills          int    `json:"kills"`
	Alive          bool   `json:"alive"`
	Placement      int    `json:"placement"`
	Timeouts       int    `json:"timeouts"`
	EliminatedTick int    `json:"eliminatedTick"`
}

func (*MatchPlayer) TableName() string {
	return "match_players"
}

////////////////////////
// HISTORY
////////////////////////

// TickFrame is one resolved tick of a match's history
type TickFrame struct {
	ID      uint           `json:"id" gorm:"primarykey;autoIncrement"`
	MatchID string         `json:"matchId" gorm:"size:36;index:idx_frame_match_tick,priority:1"`
	Tick    int            `json:"tick" gorm:"index:idx_frame_match_tick,priority:2"`
	ZoneMin int            `json:"zoneMin"`
	ZoneMax int            `json:"zoneMax"`
	Players datatypes.JSON `json:"players"`
	Events  datatypes.JSON `json:"events"`
	Time    time.Time      `json:"time"`
}

func (*TickFrame) TableName() string {
	return "tick_frames"
}
