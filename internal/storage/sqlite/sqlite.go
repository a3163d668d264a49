// Package sqlitestorage implements storage.Store using an in-memory SQLite
// database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the only SQLite-specific concerns are creating
// the in-memory DB and dumping it to disk.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/botroyale/gridroyale/internal/config"
	"github.com/botroyale/gridroyale/internal/database"
	gormstorage "github.com/botroyale/gridroyale/internal/storage/gorm"
	"gorm.io/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	log      *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a new SQLite storage backend. dsn is normally empty, which
// selects the shared in-memory database.
func New(cfg config.SQLiteConfig, dsn string, maxFrames int, logger *slog.Logger) (*Backend, error) {
	db, err := database.OpenSQLite(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite DB: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:        db,
		Logger:    logger,
		MaxFrames: maxFrames,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.done = make(chan struct{})
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the
// embedded GORM backend.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	if b.done != nil {
		<-b.done
	}

	if b.cfg.DumpPath != "" {
		if err := b.Dump(); err != nil {
			b.log.Error("Final dump failed", "error", err)
		}
	}
	return b.Backend.Close()
}

// Dump writes a point-in-time snapshot of the database to the dump path.
func (b *Backend) Dump() error {
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
		return err
	}
	b.log.Debug("Dumped to disk", "path", b.cfg.DumpPath, "duration", time.Since(start))
	return nil
}

// dumpLoop periodically dumps the in-memory SQLite database to disk.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			}
		}
	}
}
