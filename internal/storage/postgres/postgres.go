// Package postgres implements storage.Store on PostgreSQL through the GORM
// backend. Matches are row-locked so several server processes can share
// one database.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/botroyale/gridroyale/internal/database"
	gormstorage "github.com/botroyale/gridroyale/internal/storage/gorm"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the postgres storage backend.
type Dependencies struct {
	// DB is optional; Init connects from the db.* config keys when nil.
	DB        *gorm.DB
	Logger    *slog.Logger
	MaxFrames int
}

// Backend implements storage.Store on PostgreSQL.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// Init connects if no DB was injected, then migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.deps.DB = db
		b.deps.Logger.Info("Connected to database", "dsn_host", db.Name())
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:        b.deps.DB,
		Logger:    b.deps.Logger,
		MaxFrames: b.deps.MaxFrames,
		RowLocks:  b.deps.DB.Name() == "postgres",
	})
	if err := b.Backend.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	return nil
}

// Close closes the connection if Init opened one.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
