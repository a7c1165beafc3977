package controlloop

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
	"github.com/georgi-georgiev/dbgmesh/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory debugproto.Channel: Send enqueues onto sent
// for inspection, Recv drains pre-loaded (or concurrently pushed) responses
// from recv. It stands in for the TCP connection to the debug server.
type fakeChannel struct {
	recv chan debugproto.Response
	sent chan debugproto.Request
}

func newFakeChannel(buf int) *fakeChannel {
	return &fakeChannel{
		recv: make(chan debugproto.Response, buf),
		sent: make(chan debugproto.Request, buf),
	}
}

func (f *fakeChannel) Send(req debugproto.Request) error {
	f.sent <- req
	return nil
}

func (f *fakeChannel) Recv() (debugproto.Response, error) {
	resp, ok := <-f.recv
	if !ok {
		return debugproto.Response{}, io.EOF
	}
	return resp, nil
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) push(r debugproto.Response) { f.recv <- r }

// fakeDialer hands back a fixed primary/aux pair, recording the dialed URL.
type fakeDialer struct {
	primary, aux *fakeChannel
	dialedURL    string
}

func (d *fakeDialer) Dial(serverURL string) (debugproto.Channel, debugproto.Channel, error) {
	d.dialedURL = serverURL
	return d.primary, d.aux, nil
}

// fakeEmitter records every emitted call and republishes session-updated
// snapshots on a channel so tests can wait for a specific status without
// polling or sleeping.
type fakeEmitter struct {
	mu       sync.Mutex
	updated  chan session.Snapshot
	dllLoad  []string
	dllUnld  []string
	disasmOK []DisassembledInstruction
	disasmEr []string
	memErr   []string
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{updated: make(chan session.Snapshot, 64)}
}

func (e *fakeEmitter) EmitSessionUpdated(snap session.Snapshot) { e.updated <- snap }
func (e *fakeEmitter) EmitDllLoaded(sessionID, name string, base uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dllLoad = append(e.dllLoad, name)
}
func (e *fakeEmitter) EmitDllUnloaded(sessionID, name string, base uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dllUnld = append(e.dllUnld, name)
}
func (e *fakeEmitter) EmitDisassemblyUpdated(sessionID string, instructions []DisassembledInstruction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disasmOK = append(e.disasmOK, instructions...)
}
func (e *fakeEmitter) EmitDisassemblyError(sessionID, message string) {}
func (e *fakeEmitter) EmitCallStackUpdated(sessionID string, frames []CallStackFrameView) {}
func (e *fakeEmitter) EmitCallStackError(sessionID, message string)                      {}
func (e *fakeEmitter) EmitSymbolsUpdated(sessionID string, symbols []debugproto.Symbol)  {}
func (e *fakeEmitter) EmitSymbolsError(sessionID, message string)                        {}
func (e *fakeEmitter) EmitMemoryReadUpdated(sessionID string, address, requestedSize uint64, data []byte) {
}
func (e *fakeEmitter) EmitMemoryReadError(sessionID, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memErr = append(e.memErr, message)
}
func (e *fakeEmitter) EmitMemoryWriteResult(sessionID string, bytesWritten int)   {}
func (e *fakeEmitter) EmitMemoryWriteError(sessionID, message string)             {}
func (e *fakeEmitter) EmitMemoryRegionsUpdated(sessionID string, regions []debugproto.MemoryRegion) {
}
func (e *fakeEmitter) EmitMemoryRegionsError(sessionID, message string) {}

// waitForStatus drains e.updated until a snapshot with the wanted status
// arrives, failing the test if it doesn't within the timeout.
func (e *fakeEmitter) waitForStatus(t *testing.T, want session.Status) session.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-e.updated:
			if snap.Status == want {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		}
	}
}

// fakeLogSink records every Log call.
type fakeLogSink struct {
	mu      sync.Mutex
	entries []string
}

func (l *fakeLogSink) Log(sessionID, level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+message)
}

func (l *fakeLogSink) has(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func newTestLoop(t *testing.T, primaryBuf, auxBuf int) (*Loop, *fakeDialer, *fakeEmitter, *fakeLogSink, *session.Record) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	store := session.NewStore(nil)
	id, err := store.Create("demo", "tcp://127.0.0.1:9000", "target.exe")
	require.NoError(t, err)
	rec, err := store.Start(id)
	require.NoError(t, err)

	dialer := &fakeDialer{primary: newFakeChannel(primaryBuf), aux: newFakeChannel(auxBuf)}
	emitter := newFakeEmitter()
	logs := &fakeLogSink{}
	policy := session.NewPolicyStore()

	loop := &Loop{Store: store, Record: rec, Policy: policy, Emitter: emitter, Logs: logs, Dialer: dialer}
	return loop, dialer, emitter, logs, rec
}

// TestLoopStopWhileRunningIsObserved exercises the correctness fix: a Stop
// sent while the session is Running (not Paused, so the loop is blocked
// awaiting the next server event) must still terminate the loop rather than
// being silently dropped.
func TestLoopStopWhileRunningIsObserved(t *testing.T) {
	loop, _, emitter, _, rec := newTestLoop(t, 4, 4)

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	emitter.waitForStatus(t, session.StatusRunning)

	require.NoError(t, rec.Commands.Send(session.UICommand{Kind: session.CmdStop}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop while Running")
	}

	snap, ok := loop.Store.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, session.StatusStopped, snap.Status)
}

// TestLoopPauseOnBreakpointThenGoResumes drives the default policy (which
// pauses on an unclassified event like Breakpoint), fetches register
// context, accepts a Go command, and follows it through to the terminal
// ProcessExited event.
func TestLoopPauseOnBreakpointThenGoResumes(t *testing.T) {
	loop, dialer, emitter, _, rec := newTestLoop(t, 4, 4)

	dialer.aux.push(debugproto.Response{
		Type:    debugproto.ResponseThreadContext,
		Context: debugproto.NewX64Context(debugproto.RawX64Registers{Rip: 0x401000}),
	})
	dialer.primary.push(debugproto.Response{
		Type: debugproto.ResponseEvent,
		Event: &debugproto.Event{Type: debugproto.EventBreakpoint, ProcessID: 1, ThreadID: 2, Address: 0x401000},
	})

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	paused := emitter.waitForStatus(t, session.StatusPaused)
	require.NotNil(t, paused.CurrentEvent)
	assert.Equal(t, debugproto.EventBreakpoint, paused.CurrentEvent.EventType)
	require.NotNil(t, paused.CurrentEvent.Context)
	assert.Equal(t, "0x0000000000401000", paused.CurrentEvent.Context.X64.Rip)

	dialer.primary.push(debugproto.Response{
		Type:  debugproto.ResponseEvent,
		Event: &debugproto.Event{Type: debugproto.EventProcessExited, ProcessID: 1, ExitCode: 0},
	})
	require.NoError(t, rec.Commands.Send(session.UICommand{Kind: session.CmdGo}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not terminate after process exit")
	}

	sent := <-dialer.primary.sent // Launch
	assert.Equal(t, debugproto.RequestLaunch, sent.Type)
	sent = <-dialer.primary.sent // Continue, issued by the Go command
	assert.Equal(t, debugproto.RequestContinue, sent.Type)
	assert.Equal(t, uint32(1), sent.ProcessID)
	assert.Equal(t, uint32(2), sent.ThreadID)

	snap, _ := loop.Store.Get(rec.ID)
	assert.Equal(t, session.StatusStopped, snap.Status)
	rec.Mu.RLock()
	debugResult := rec.DebugResult
	rec.Mu.RUnlock()
	assert.Contains(t, debugResult, "exited with code 0")
}

// TestLoopAutoContinuesWhenPolicySaysNoPause checks that a DllLoaded event
// with StopOnDllLoad disabled auto-continues (the loop goes on to the
// following ProcessExited event and ends Stopped) but still emits the
// targeted dll-loaded event with the module's name.
func TestLoopAutoContinuesWhenPolicySaysNoPause(t *testing.T) {
	loop, dialer, emitter, _, rec := newTestLoop(t, 4, 4)

	policy := loop.Policy.Get()
	policy.StopOnDllLoad = false
	require.NoError(t, loop.Policy.Set(policy))

	dialer.primary.push(debugproto.Response{
		Type:  debugproto.ResponseEvent,
		Event: &debugproto.Event{Type: debugproto.EventDllLoaded, Base: 0x10000000, Name: "kernel32.dll"},
	})
	dialer.primary.push(debugproto.Response{
		Type:  debugproto.ResponseEvent,
		Event: &debugproto.Event{Type: debugproto.EventProcessExited},
	})

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not terminate")
	}

	emitter.mu.Lock()
	assert.Equal(t, []string{"kernel32.dll"}, emitter.dllLoad)
	emitter.mu.Unlock()

	snap, _ := loop.Store.Get(rec.ID)
	assert.Equal(t, session.StatusStopped, snap.Status)
}

// TestLoopStepOutFailureRemainsPaused is the special case of spec §8 S5: a
// server Error response to a StepOut request logs the failure but keeps the
// session Paused rather than transitioning to Error.
func TestLoopStepOutFailureRemainsPaused(t *testing.T) {
	loop, dialer, emitter, logs, rec := newTestLoop(t, 4, 4)

	dialer.aux.push(debugproto.Response{
		Type:    debugproto.ResponseThreadContext,
		Context: debugproto.NewX64Context(debugproto.RawX64Registers{Rip: 0x401000}),
	})
	dialer.primary.push(debugproto.Response{
		Type:  debugproto.ResponseEvent,
		Event: &debugproto.Event{Type: debugproto.EventBreakpoint, ProcessID: 1, ThreadID: 2},
	})

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	emitter.waitForStatus(t, session.StatusPaused)

	dialer.primary.push(debugproto.Response{Type: debugproto.ResponseError, Message: "cannot step out of leaf frame"})
	require.NoError(t, rec.Commands.Send(session.UICommand{Kind: session.CmdStepOut}))

	// Allow the step-out failure to be processed before confirming the
	// session is still Paused and Run() hasn't returned.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Run() returned after a step-out failure; it should remain Paused")
	default:
	}

	require.Eventually(t, func() bool {
		return logs.has("step_out failed")
	}, time.Second, 10*time.Millisecond)

	snap, _ := loop.Store.Get(rec.ID)
	assert.Equal(t, session.StatusPaused, snap.Status)

	require.NoError(t, rec.Commands.Send(session.UICommand{Kind: session.CmdStop}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop")
	}
}

// TestLoopHandleAuxQueryStaysPaused checks that a Paused-mode read_memory
// query doesn't consume the pause: an error response is surfaced as a
// targeted memory-read-error event and the session remains Paused.
func TestLoopHandleAuxQueryStaysPaused(t *testing.T) {
	loop, dialer, emitter, _, rec := newTestLoop(t, 4, 4)

	dialer.aux.push(debugproto.Response{
		Type:    debugproto.ResponseThreadContext,
		Context: debugproto.NewX64Context(debugproto.RawX64Registers{Rip: 0x401000}),
	})
	dialer.primary.push(debugproto.Response{
		Type:  debugproto.ResponseEvent,
		Event: &debugproto.Event{Type: debugproto.EventBreakpoint, ProcessID: 1, ThreadID: 2},
	})

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	emitter.waitForStatus(t, session.StatusPaused)

	dialer.aux.push(debugproto.Response{Type: debugproto.ResponseMemoryData, Data: nil})
	require.NoError(t, rec.Commands.Send(session.UICommand{Kind: session.CmdReadMemory, Address: 0x1000, Size: 16}))

	require.Eventually(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.memErr) == 1
	}, time.Second, 10*time.Millisecond)

	select {
	case <-done:
		t.Fatal("Run() returned after an aux query; it should remain Paused")
	default:
	}

	require.NoError(t, rec.Commands.Send(session.UICommand{Kind: session.CmdStop}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop")
	}
}
