package postgres

import (
	"testing"

	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/internal/storage/storagetest"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Compile-time interface check
var _ storage.Store = (*Backend)(nil)

// newSQLiteDB stands in for postgres; the backend only needs a GORM handle.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestCloseBeforeInit(t *testing.T) {
	b := New(Dependencies{})
	require.NoError(t, b.Close())
}

func TestInitClose(t *testing.T) {
	b := New(Dependencies{DB: newSQLiteDB(t)})

	require.NoError(t, b.Init())
	require.NotNil(t, b.Backend)
	require.NoError(t, b.Close())
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		b := New(Dependencies{DB: newSQLiteDB(t)})
		require.NoError(t, b.Init())
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}
