package sqlitestorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/botroyale/gridroyale/internal/config"
	"github.com/botroyale/gridroyale/internal/storage"
	"github.com/botroyale/gridroyale/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Store = (*Backend)(nil)

// memDSN gives every test its own named in-memory database.
func memDSN(t *testing.T) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", filepath.Base(t.Name()))
}

func TestStoreContract(t *testing.T) {
	n := 0
	storagetest.Run(t, func(t *testing.T) storage.Store {
		n++
		b, err := New(config.SQLiteConfig{}, fmt.Sprintf("file:contract%d?mode=memory&cache=shared", n), 0, nil)
		require.NoError(t, err)
		require.NoError(t, b.Init())
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestCloseWritesFinalDump(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "gridroyale.db")
	b, err := New(config.SQLiteConfig{DumpPath: dumpPath, DumpInterval: time.Hour}, memDSN(t), 0, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.CreateAgent(context.Background(), storagetest.Agent("a1")))
	require.NoError(t, b.Close())

	info, err := os.Stat(dumpPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestDumpLoop(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "loop.db")
	b, err := New(config.SQLiteConfig{DumpPath: dumpPath, DumpInterval: 20 * time.Millisecond}, memDSN(t), 0, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dumpPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseWithoutDump(t *testing.T) {
	b, err := New(config.SQLiteConfig{}, memDSN(t), 0, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
}
