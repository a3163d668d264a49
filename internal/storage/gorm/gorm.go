// Package gormstorage implements storage.Store on top of GORM. It is shared
// by the postgres and sqlite backends, which only differ in how the
// connection is opened and maintained.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/botroyale/gridroyale/internal/database"
	"github.com/botroyale/gridroyale/internal/model"
	"github.com/botroyale/gridroyale/internal/model/convert"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/pkg/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger

	// MaxFrames caps the history kept per match; 0 keeps everything.
	MaxFrames int
	// RowLocks adds SELECT ... FOR UPDATE to locked match reads, for
	// databases shared between several server processes.
	RowLocks bool
}

// Backend implements storage.Store using GORM.
type Backend struct {
	deps Dependencies

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{
		deps:  deps,
		locks: make(map[string]*sync.Mutex),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database connection")
	}
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.deps.Logger.Info("Database schema ready", "dialect", b.deps.DB.Name())
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *Backend) db(ctx context.Context) *gorm.DB {
	return b.deps.DB.WithContext(ctx)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

//////////////////////
// AGENTS
//////////////////////

// CreateAgent stores a new agent. Names and tokens are unique.
func (b *Backend) CreateAgent(ctx context.Context, a *core.Agent) error {
	row := convert.CoreToAgent(*a)
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&model.Agent{}).
			Where("id = ? OR name = ? OR token = ?", row.ID, row.Name, row.Token).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("agent %s: %w", a.Name, storage.ErrConflict)
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("agent %s: %w", a.Name, storage.ErrConflict)
			}
			return fmt.Errorf("failed to insert agent: %w", err)
		}
		return nil
	})
}

func getAgent(db *gorm.DB, id string) (*core.Agent, error) {
	var row model.Agent
	if err := db.Take(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "agent "+id)
	}
	a := convert.AgentToCore(row)
	return &a, nil
}

// updateAgent loads, mutates and saves one agent inside db. Identity fields
// are restored after mutate runs.
func updateAgent(db *gorm.DB, id string, mutate func(*core.Agent) error) error {
	cur, err := getAgent(db, id)
	if err != nil {
		return err
	}
	next := *cur
	if err := mutate(&next); err != nil {
		return err
	}
	next.ID, next.Name, next.Token = cur.ID, cur.Name, cur.Token

	row := convert.CoreToAgent(next)
	if err := db.Save(&row).Error; err != nil {
		return fmt.Errorf("failed to update agent %s: %w", id, err)
	}
	return nil
}

// GetAgent returns the agent with the given id.
func (b *Backend) GetAgent(ctx context.Context, id string) (*core.Agent, error) {
	return getAgent(b.db(ctx), id)
}

// GetAgentByToken looks an agent up by credential.
func (b *Backend) GetAgentByToken(ctx context.Context, token string) (*core.Agent, error) {
	var row model.Agent
	if err := b.db(ctx).Take(&row, "token = ?", token).Error; err != nil {
		return nil, notFound(err, "agent token")
	}
	a := convert.AgentToCore(row)
	return &a, nil
}

// UpdateAgent applies mutate to the stored agent in one transaction.
func (b *Backend) UpdateAgent(ctx context.Context, id string, mutate func(*core.Agent) error) error {
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		return updateAgent(tx, id, mutate)
	})
}

// TopAgents returns agents ordered by rating, then wins, then name.
func (b *Backend) TopAgents(ctx context.Context, limit int) ([]core.Agent, error) {
	q := b.db(ctx).Order("rating desc").Order("wins desc").Order("name asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.Agent
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	out := make([]core.Agent, len(rows))
	for i, r := range rows {
		out[i] = convert.AgentToCore(r)
	}
	return out, nil
}

//////////////////////
// MATCHES
//////////////////////

// CreateMatch stores a new match with its player rows.
func (b *Backend) CreateMatch(ctx context.Context, m *core.Match) error {
	row := convert.CoreToMatch(*m)
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Match{}).Where("id = ?", row.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("match %s: %w", m.ID, storage.ErrConflict)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}
		return nil
	})
}

func loadMatch(db *gorm.DB, id string) (*core.Match, error) {
	var row model.Match
	if err := db.Preload("Players").Take(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "match "+id)
	}
	m, err := convert.MatchToCore(row)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMatch returns the match with the given id.
func (b *Backend) GetMatch(ctx context.Context, id string) (*core.Match, error) {
	return loadMatch(b.db(ctx), id)
}

func toCoreMatches(rows []model.Match) ([]core.Match, error) {
	out := make([]core.Match, 0, len(rows))
	for _, r := range rows {
		m, err := convert.MatchToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ListMatches returns every match with the given status, oldest first.
func (b *Backend) ListMatches(ctx context.Context, status core.MatchStatus) ([]core.Match, error) {
	var rows []model.Match
	err := b.db(ctx).Preload("Players").
		Where("status = ?", string(status)).
		Order("created_at asc").Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return toCoreMatches(rows)
}

// ActiveMatchFor returns the unfinished match the agent plays in.
func (b *Backend) ActiveMatchFor(ctx context.Context, agentID string) (*core.Match, error) {
	var row model.Match
	err := b.db(ctx).Preload("Players").
		Joins("JOIN match_players ON match_players.match_id = matches.id").
		Where("match_players.agent_id = ? AND matches.status <> ?", agentID, string(core.MatchCompleted)).
		Order("matches.created_at desc").
		Take(&row).Error
	if err != nil {
		return nil, notFound(err, "active match for "+agentID)
	}
	m, err := convert.MatchToCore(row)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Frames returns the most recent history frames of a match, oldest first.
func (b *Backend) Frames(ctx context.Context, matchID string, limit int) ([]core.TickFrame, error) {
	db := b.db(ctx)
	var n int64
	if err := db.Model(&model.Match{}).Where("id = ?", matchID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("match %s: %w", matchID, storage.ErrNotFound)
	}

	q := db.Where("match_id = ?", matchID).Order("tick desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.TickFrame
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load frames: %w", err)
	}
	slices.Reverse(rows)

	out := make([]core.TickFrame, 0, len(rows))
	for _, r := range rows {
		f, err := convert.TickFrameToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

//////////////////////
// MATCH LOCK
//////////////////////

// gormTx writes through the open transaction.
type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) GetAgent(id string) (*core.Agent, error) {
	return getAgent(t.tx, id)
}

func (t *gormTx) UpdateAgent(id string, mutate func(*core.Agent) error) error {
	return updateAgent(t.tx, id, mutate)
}

func (t *gormTx) AppendFrame(f *core.TickFrame) error {
	row := convert.CoreToTickFrame(*f)
	if err := t.tx.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	return nil
}

func (b *Backend) matchMutex(id string) *sync.Mutex {
	b.locksMu.Lock()
	defer b.locksMu.Unlock()
	mu, ok := b.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		b.locks[id] = mu
	}
	return mu
}

// WithMatchLock runs fn inside a transaction while holding the match's
// in-process mutex and, with RowLocks, its row lock.
func (b *Backend) WithMatchLock(ctx context.Context, matchID string, fn func(tx storage.MatchTx, m *core.Match) error) error {
	mu := b.matchMutex(matchID)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		if b.deps.RowLocks {
			var locked model.Match
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id").Take(&locked, "id = ?", matchID).Error
			if err != nil {
				return notFound(err, "match "+matchID)
			}
		}
		m, err := loadMatch(tx, matchID)
		if err != nil {
			return err
		}

		if err := fn(&gormTx{tx: tx}, m); err != nil {
			return err
		}

		m.ID = matchID
		return b.saveMatch(tx, m)
	})
}

func (b *Backend) saveMatch(tx *gorm.DB, m *core.Match) error {
	row := convert.CoreToMatch(*m)
	if err := tx.Omit(clause.Associations).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save match %s: %w", m.ID, err)
	}
	for i := range row.Players {
		if err := tx.Save(&row.Players[i]).Error; err != nil {
			return fmt.Errorf("failed to save player %s: %w", row.Players[i].AgentID, err)
		}
	}

	if keep := b.deps.MaxFrames; keep > 0 {
		newest := tx.Model(&model.TickFrame{}).Select("id").
			Where("match_id = ?", m.ID).Order("tick desc").Limit(keep)
		err := tx.Where("match_id = ? AND id NOT IN (?)", m.ID, newest).
			Delete(&model.TickFrame{}).Error
		if err != nil {
			return fmt.Errorf("failed to trim frames: %w", err)
		}
	}
	return nil
}
