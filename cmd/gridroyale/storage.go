package main

import (
	"fmt"
	"log/slog"

	"github.com/botroyale/gridroyale/internal/config"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/internal/storage/memory"
	pgstorage "github.com/botroyale/gridroyale/internal/storage/postgres"
	sqlitestorage "github.com/botroyale/gridroyale/internal/storage/sqlite"
)

// initStorage creates and initialises the configured backend.
func initStorage(storageCfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	backend, err := createStorageBackend(storageCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage backend: %w", storageCfg.Type, err)
	}
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	switch storageCfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			Logger:    logger,
			MaxFrames: storageCfg.Memory.MaxFrames,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(storageCfg.SQLite, "", storageCfg.Memory.MaxFrames, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath)
		return backend, nil

	case "memory", "":
		logger.Info("Memory storage backend initialized")
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageCfg.Type)
	}
}
