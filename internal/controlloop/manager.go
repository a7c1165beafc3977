package controlloop

import "github.com/georgi-georgiev/dbgmesh/internal/session"

// Manager wires a Store/PolicyStore/Emitter/LogSink/Dialer together and
// exposes the operations the front-end command surface needs: launching a
// session's control loop and dispatching UI commands to it.
type Manager struct {
	Store   *session.Store
	Policy  *session.PolicyStore
	Emitter Emitter
	Logs    LogSink
	Dialer  Dialer
}

// NewManager constructs a Manager from its collaborators.
func NewManager(store *session.Store, policy *session.PolicyStore, emitter Emitter, logs LogSink, dialer Dialer) *Manager {
	return &Manager{Store: store, Policy: policy, Emitter: emitter, Logs: logs, Dialer: dialer}
}

// Start launches id's control loop in its own goroutine, per spec §4.3
// "Created | Start | Running". It returns once the record has been claimed
// (the double-start guard and transient reset of session.Store.Start), not
// once the loop terminates.
func (m *Manager) Start(id string) error {
	rec, err := m.Store.Start(id)
	if err != nil {
		return err
	}

	loop := &Loop{
		Store:   m.Store,
		Record:  rec,
		Policy:  m.Policy,
		Emitter: m.Emitter,
		Logs:    m.Logs,
		Dialer:  m.Dialer,
	}
	go loop.Run()
	return nil
}

// Dispatch enqueues a UI command for id's running control loop. Every
// command this carries (continuation or auxiliary query) is valid only
// while Paused (spec §8 property 2); status is checked here so the
// rejection happens before the send rather than silently queuing.
func (m *Manager) Dispatch(id string, cmd session.UICommand) error {
	rec, ok := m.Store.GetRecord(id)
	if !ok {
		return &session.NotFoundError{ID: id}
	}

	rec.Mu.RLock()
	status := rec.Status
	queue := rec.Commands
	rec.Mu.RUnlock()

	if status != session.StatusPaused {
		return &session.InvalidStateError{ID: id, Status: status, Wanted: "Paused"}
	}
	if queue == nil {
		return &session.InternalCommunicationError{Message: "session has no active command queue"}
	}
	return queue.Send(cmd)
}

// Stop requests id's control loop to stop. It is idempotent: a session
// that is not running (no queue, or already terminal) is reported as
// success, per spec §7 "stop_session is reported as success regardless of
// whether the session existed or was already terminated."
func (m *Manager) Stop(id string) error {
	rec, ok := m.Store.GetRecord(id)
	if !ok {
		return nil
	}

	rec.Mu.RLock()
	status := rec.Status
	queue := rec.Commands
	rec.Mu.RUnlock()

	if queue == nil || status == session.StatusStopped || status == session.StatusError || status == session.StatusCreated {
		return nil
	}
	return queue.Send(session.UICommand{Kind: session.CmdStop})
}
