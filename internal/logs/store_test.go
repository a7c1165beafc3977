package logs

import (
	"fmt"
	"testing"
	"time"

	"github.com/georgi-georgiev/dbgmesh/internal/storage/models"
	"github.com/georgi-georgiev/dbgmesh/internal/storage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestStore opens a private named in-memory database per test: the
// shared-cache DSN would otherwise let sibling tests see each other's rows.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.LogEntryRecord{}))

	return NewStore(repository.NewLogRepository(db), zap.NewNop())
}

func TestStoreLogPersistsAndLists(t *testing.T) {
	store := setupTestStore(t)

	store.Log("session_1", "INFO", "session started")
	time.Sleep(time.Millisecond)
	store.Log("session_1", "ERROR", "connection lost")
	store.Log("session_2", "INFO", "unrelated session")

	entries, err := store.List("session_1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "connection lost", entries[0].Message, "most recent first")
	assert.Equal(t, "ERROR", entries[0].Level)
}

func TestStoreListAllSessionsWhenUnfiltered(t *testing.T) {
	store := setupTestStore(t)

	store.Log("session_1", "INFO", "a")
	store.Log("session_2", "INFO", "b")

	entries, err := store.List("", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStoreListRespectsLimit(t *testing.T) {
	store := setupTestStore(t)

	for i := 0; i < 5; i++ {
		store.Log("session_1", "INFO", "line")
	}

	entries, err := store.List("session_1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStoreClearScopedToSession(t *testing.T) {
	store := setupTestStore(t)

	store.Log("session_1", "INFO", "a")
	store.Log("session_2", "INFO", "b")

	require.NoError(t, store.Clear("session_1"))

	remaining, err := store.List("", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "session_2", remaining[0].SessionID)
}

func TestStoreClearAllWhenSessionIDEmpty(t *testing.T) {
	store := setupTestStore(t)

	store.Log("session_1", "INFO", "a")
	store.Log("session_2", "INFO", "b")

	require.NoError(t, store.Clear(""))

	remaining, err := store.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
