package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures emitted events for assertion without requiring a
// real Event Emitter.
type recordingSink struct {
	updated []Snapshot
	removed []string
}

func (s *recordingSink) EmitSessionUpdated(snap Snapshot) { s.updated = append(s.updated, snap) }
func (s *recordingSink) EmitSessionRemoved(id string)      { s.removed = append(s.removed, id) }

func TestStoreCreateRejectsDuplicateServerAndCommand(t *testing.T) {
	store := NewStore(&recordingSink{})

	_, err := store.Create("a", "tcp://127.0.0.1:9000", "target.exe")
	require.NoError(t, err)

	_, err = store.Create("b", "tcp://127.0.0.1:9000", "target.exe")
	require.Error(t, err)
	var exists *AlreadyExistsError
	assert.ErrorAs(t, err, &exists)
}

func TestStoreCreateGetListDelete(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(sink)

	id, err := store.Create("demo", "tcp://127.0.0.1:9000", "target.exe")
	require.NoError(t, err)

	snap, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusCreated, snap.Status)
	assert.Len(t, store.List(), 1)

	require.NoError(t, store.Delete(id))
	_, ok = store.Get(id)
	assert.False(t, ok)
	assert.Len(t, sink.removed, 1)

	// Idempotent: a second delete of an already-gone id is not an error.
	require.NoError(t, store.Delete(id))
	assert.Len(t, sink.removed, 1, "no second session-removed for an already-gone id")
}

func TestStoreUpdateRequiresStoppedOrError(t *testing.T) {
	store := NewStore(&recordingSink{})
	id, err := store.Create("demo", "tcp://127.0.0.1:9000", "target.exe")
	require.NoError(t, err)

	err = store.Update(id, "renamed", "tcp://127.0.0.1:9000", "target.exe")
	var invalid *InvalidStateError
	require.ErrorAs(t, err, &invalid)

	rec, _ := store.GetRecord(id)
	rec.Mu.Lock()
	rec.Status = StatusStopped
	rec.Mu.Unlock()

	require.NoError(t, store.Update(id, "renamed", "tcp://127.0.0.1:9000", "target.exe"))
	snap, _ := store.Get(id)
	assert.Equal(t, "renamed", snap.Name)
}

func TestStoreUpdateDuplicateExcludesSelf(t *testing.T) {
	store := NewStore(&recordingSink{})
	id, err := store.Create("demo", "tcp://127.0.0.1:9000", "target.exe")
	require.NoError(t, err)

	rec, _ := store.GetRecord(id)
	rec.Mu.Lock()
	rec.Status = StatusStopped
	rec.Mu.Unlock()

	// Updating to the same (server_url, launch_command) it already owns must
	// not be rejected as a duplicate of itself.
	require.NoError(t, store.Update(id, "demo2", "tcp://127.0.0.1:9000", "target.exe"))
}

func TestStoreStartRejectsDoubleStart(t *testing.T) {
	store := NewStore(&recordingSink{})
	id, err := store.Create("demo", "tcp://127.0.0.1:9000", "target.exe")
	require.NoError(t, err)

	rec, err := store.Start(id)
	require.NoError(t, err)
	require.NotNil(t, rec.Commands)

	_, err = store.Start(id)
	require.Error(t, err)
	var invalid *InvalidStateError
	assert.ErrorAs(t, err, &invalid)

	store.Finish(id)
	// Start is available again once Finish has released the running guard,
	// as long as status permits it (Finish alone doesn't change status, so
	// force it to a restartable one first).
	rec.Mu.Lock()
	rec.Status = StatusStopped
	rec.Mu.Unlock()
	_, err = store.Start(id)
	assert.NoError(t, err)
}

func TestStoreStartResetsTransientStateOnRestart(t *testing.T) {
	store := NewStore(&recordingSink{})
	id, err := store.Create("demo", "tcp://127.0.0.1:9000", "target.exe")
	require.NoError(t, err)

	rec, err := store.Start(id)
	require.NoError(t, err)
	firstQueue := rec.Commands

	rec.Mu.Lock()
	rec.Modules[0x400000] = Module{Name: "target.exe", Base: 0x400000}
	rec.DebugResult = "stale"
	rec.Status = StatusStopped
	rec.Mu.Unlock()
	store.Finish(id)

	rec2, err := store.Start(id)
	require.NoError(t, err)
	assert.Empty(t, rec2.Modules)
	assert.Empty(t, rec2.DebugResult)
	assert.NotSame(t, firstQueue, rec2.Commands, "restart installs a fresh command queue")
}

func TestStoreUpdateWindowState(t *testing.T) {
	store := NewStore(&recordingSink{})
	id, err := store.Create("demo", "tcp://127.0.0.1:9000", "target.exe")
	require.NoError(t, err)

	require.NoError(t, store.UpdateWindowState(id, "disassembly", true))
	snap, _ := store.Get(id)
	assert.True(t, snap.WindowState.Disassembly)
	assert.False(t, snap.WindowState.CallStack)

	err = store.UpdateWindowState(id, "bogus", true)
	require.Error(t, err)
}

func TestStoreModulesAndThreads(t *testing.T) {
	store := NewStore(&recordingSink{})
	id, err := store.Create("demo", "tcp://127.0.0.1:9000", "target.exe")
	require.NoError(t, err)

	rec, _ := store.GetRecord(id)
	rec.Mu.Lock()
	rec.Modules[0x400000] = Module{Name: "target.exe", Base: 0x400000}
	rec.Threads[1] = Thread{ID: 1, StartAddress: 0x400000}
	rec.Mu.Unlock()

	mods, err := store.Modules(id)
	require.NoError(t, err)
	assert.Len(t, mods, 1)

	threads, err := store.Threads(id)
	require.NoError(t, err)
	assert.Len(t, threads, 1)

	_, err = store.Modules("nonexistent")
	assert.Error(t, err)
}
