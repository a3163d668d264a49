package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/botroyale/gridroyale/internal/config"
	"github.com/botroyale/gridroyale/internal/storage/memory"
	sqlitestorage "github.com/botroyale/gridroyale/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStorageBackend(t *testing.T) {
	logger := slog.Default()

	b, err := createStorageBackend(config.StorageConfig{Type: "memory"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "cassandra"}, logger)
	assert.Error(t, err)
}

func TestInitStorage_SQLite(t *testing.T) {
	cfg := config.StorageConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{DumpPath: filepath.Join(t.TempDir(), "gridroyale.db")},
	}
	store, err := initStorage(cfg, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, store)
	require.NoError(t, store.Close())
}
