package session

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventSink is the narrow slice of the Event Emitter the store needs: a
// session-updated snapshot after every create/update/delete, and a
// session-removed notice on actual removal. The control loop emits
// separately through the same sink for its own status transitions.
type EventSink interface {
	EmitSessionUpdated(snap Snapshot)
	EmitSessionRemoved(id string)
}

// Store is the process-wide mapping from session id to session record. All
// operations take the store's own lock; never hold it across a record's
// lock acquisition in a way that could be observed across a blocking call,
// and never hold either across RPC I/O or emission.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	sink    EventSink
	idSeq   uint64
}

// NewStore creates an empty store. sink may be nil in tests that don't
// care about emitted events.
func NewStore(sink EventSink) *Store {
	return &Store{
		records: make(map[string]*Record),
		sink:    sink,
	}
}

func (s *Store) emitUpdated(snap Snapshot) {
	if s.sink != nil {
		s.sink.EmitSessionUpdated(snap)
	}
}

func (s *Store) emitRemoved(id string) {
	if s.sink != nil {
		s.sink.EmitSessionRemoved(id)
	}
}

// nextID generates a monotonic, millisecond-resolution session id.
func (s *Store) nextID() string {
	s.idSeq++
	return fmt.Sprintf("session_%d_%d", time.Now().UnixMilli(), s.idSeq)
}

// duplicateLocked reports whether a record other than excludeID already
// uses (serverURL, launchCommand). Callers must hold s.mu.
func (s *Store) duplicateLocked(serverURL, launchCommand, excludeID string) bool {
	for id, rec := range s.records {
		if id == excludeID {
			continue
		}
		rec.Mu.RLock()
		dup := rec.ServerURL == serverURL && rec.LaunchCommand == launchCommand
		rec.Mu.RUnlock()
		if dup {
			return true
		}
	}
	return false
}

// Create inserts a new Created-status record, rejecting a duplicate
// (server_url, launch_command) pair.
func (s *Store) Create(name, serverURL, launchCommand string) (string, error) {
	s.mu.Lock()
	if s.duplicateLocked(serverURL, launchCommand, "") {
		s.mu.Unlock()
		return "", &AlreadyExistsError{ServerURL: serverURL, LaunchCommand: launchCommand}
	}

	id := s.nextID()
	rec := NewRecord(id, name, serverURL, launchCommand)
	s.records[id] = rec
	s.mu.Unlock()

	s.emitUpdated(rec.ToSnapshot())
	return id, nil
}

// Update rewrites name/server_url/launch_command. Permitted only when the
// target is Stopped or Error; the duplicate check excludes the target
// itself.
func (s *Store) Update(id, name, serverURL, launchCommand string) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	if s.duplicateLocked(serverURL, launchCommand, id) {
		s.mu.Unlock()
		return &AlreadyExistsError{ServerURL: serverURL, LaunchCommand: launchCommand}
	}
	s.mu.Unlock()

	rec.Mu.Lock()
	if rec.Status != StatusStopped && rec.Status != StatusError {
		status := rec.Status
		rec.Mu.Unlock()
		return &InvalidStateError{ID: id, Status: status, Wanted: "Stopped or Error"}
	}
	rec.Name = name
	rec.ServerURL = serverURL
	rec.LaunchCommand = launchCommand
	rec.Mu.Unlock()

	s.emitUpdated(rec.ToSnapshot())
	return nil
}

// Get returns the UI snapshot for id, if present.
func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.Lock()
	rec, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return rec.ToSnapshot(), true
}

// GetRecord returns the live record for internal callers (the control
// loop, command handlers) that need to act on it rather than just read a
// snapshot.
func (s *Store) GetRecord(id string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// List returns a snapshot of every session. Ordering is by id; no
// guarantee is made across calls beyond that.
func (s *Store) List() []Snapshot {
	s.mu.Lock()
	recs := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	snaps := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		snaps = append(snaps, rec.ToSnapshot())
	}
	return snaps
}

// Start marks rec as owned by a soon-to-launch control-loop goroutine,
// resetting its transient state on a restart (spec §4.3 Reset). It
// rejects a session that is already running (the double-start guard
// adopted from the original implementation's start_debug_session) or
// whose status is not one a Start is valid from.
func (s *Store) Start(id string) (*Record, error) {
	rec, ok := s.GetRecord(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if rec.running {
		return nil, &InvalidStateError{ID: id, Status: rec.Status, Wanted: "not already running"}
	}
	if rec.Status != StatusCreated && rec.Status != StatusStopped && rec.Status != StatusError {
		return nil, &InvalidStateError{ID: id, Status: rec.Status, Wanted: "Created, Stopped, or Error"}
	}

	if rec.Status != StatusCreated {
		rec.reset()
	}
	rec.ErrorMessage = ""
	rec.running = true

	return rec, nil
}

// Finish releases the running guard set by Start. Safe to call even if
// the session was since deleted.
func (s *Store) Finish(id string) {
	rec, ok := s.GetRecord(id)
	if !ok {
		return
	}
	rec.Mu.Lock()
	rec.running = false
	rec.Mu.Unlock()
}

// Delete removes a session, idempotently. It first issues a best-effort
// stop (closing the command queue, the control loop's cancellation
// signal) and then removes the record, emitting a final session-updated
// snapshot and then session-removed only on actual removal.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	rec.Mu.Lock()
	if rec.Commands != nil {
		rec.Commands.Close()
	}
	rec.Mu.Unlock()
	delete(s.records, id)
	s.mu.Unlock()

	s.emitUpdated(rec.ToSnapshot())
	s.emitRemoved(id)
	return nil
}

// UpdateWindowState sets one of the three auxiliary-pane flags (spec §3
// window_state), emitting a session-updated snapshot afterward. The flags
// are reported on snapshots only; targeted event emission does not
// consult them.
func (s *Store) UpdateWindowState(id, window string, isOpen bool) error {
	rec, ok := s.GetRecord(id)
	if !ok {
		return &NotFoundError{ID: id}
	}

	rec.Mu.Lock()
	switch window {
	case "disassembly":
		rec.WindowState.Disassembly = isOpen
	case "registers":
		rec.WindowState.Registers = isOpen
	case "callstack":
		rec.WindowState.CallStack = isOpen
	default:
		rec.Mu.Unlock()
		return &InternalCommunicationError{Message: "unknown window: " + window}
	}
	rec.Mu.Unlock()

	s.emitUpdated(rec.ToSnapshot())
	return nil
}

// Modules returns the live module table for id, for get_session_modules.
func (s *Store) Modules(id string) ([]Module, error) {
	rec, ok := s.GetRecord(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	rec.Mu.RLock()
	defer rec.Mu.RUnlock()
	out := make([]Module, 0, len(rec.Modules))
	for _, m := range rec.Modules {
		out = append(out, m)
	}
	return out, nil
}

// Threads returns the live thread table for id, for get_session_threads.
func (s *Store) Threads(id string) ([]Thread, error) {
	rec, ok := s.GetRecord(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	rec.Mu.RLock()
	defer rec.Mu.RUnlock()
	out := make([]Thread, 0, len(rec.Threads))
	for _, t := range rec.Threads {
		out = append(out, t)
	}
	return out, nil
}
