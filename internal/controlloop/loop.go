package controlloop

import (
	"fmt"

	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
	"github.com/georgi-georgiev/dbgmesh/internal/session"
)

// Emitter is the Event Emitter's interface as seen by the control loop
// (spec §4.6). Implementations must never block the loop; a failure to
// publish is the emitter's own concern to log and swallow.
type Emitter interface {
	EmitSessionUpdated(snap session.Snapshot)
	EmitDllLoaded(sessionID, name string, base uint64)
	EmitDllUnloaded(sessionID, name string, base uint64)
	EmitDisassemblyUpdated(sessionID string, instructions []DisassembledInstruction)
	EmitDisassemblyError(sessionID, message string)
	EmitCallStackUpdated(sessionID string, frames []CallStackFrameView)
	EmitCallStackError(sessionID, message string)
	EmitSymbolsUpdated(sessionID string, symbols []debugproto.Symbol)
	EmitSymbolsError(sessionID, message string)
	EmitMemoryReadUpdated(sessionID string, address, requestedSize uint64, data []byte)
	EmitMemoryReadError(sessionID, message string)
	EmitMemoryWriteResult(sessionID string, bytesWritten int)
	EmitMemoryWriteError(sessionID, message string)
	EmitMemoryRegionsUpdated(sessionID string, regions []debugproto.MemoryRegion)
	EmitMemoryRegionsError(sessionID, message string)
}

// LogSink receives the log/toast entries the control loop produces: the
// OutputDebugString relay, the step-out-failure special case, and the
// final error of a terminated session.
type LogSink interface {
	Log(sessionID, level, message string)
}

// Dialer opens the primary and auxiliary channels for a session's
// server_url. The default implementation is debugproto.TCPDialer.
type Dialer interface {
	Dial(serverURL string) (primary, aux debugproto.Channel, err error)
}

// Loop is the per-session finite-state machine of spec §4.3: it owns the
// primary channel from launch to termination, applies the stop policy,
// fetches register context on pause, and multiplexes UI commands against
// the auxiliary channel while paused. One Loop runs in its own goroutine
// per active session; Record.Commands is the cancellation signal.
type Loop struct {
	Store   *session.Store
	Record  *session.Record
	Policy  *session.PolicyStore
	Emitter Emitter
	Logs    LogSink
	Dialer  Dialer
}

// Run drives the session to termination. It returns only once the loop has
// reached a terminal status (Stopped or Error); the caller is expected to
// invoke it in its own goroutine.
func (l *Loop) Run() {
	defer l.Store.Finish(l.Record.ID)

	primary, aux, err := l.Dialer.Dial(l.Record.ServerURL)
	if err != nil {
		l.fail(&session.ConnectionFailedError{Underlying: err})
		return
	}
	defer primary.Close()
	defer aux.Close()

	l.setRunning()

	launch := debugproto.Request{Type: debugproto.RequestLaunch, Command: l.Record.LaunchCommand}
	if err := primary.Send(launch); err != nil {
		l.fail(&session.ConnectionFailedError{Underlying: err})
		return
	}

	for {
		// While Running the loop must not miss a UI Stop even though it is
		// otherwise blocked awaiting the next server event, so the primary
		// receive runs on its own goroutine and is selected against the
		// command queue rather than read synchronously.
		respCh := recvAsync(primary)

		select {
		case res := <-respCh:
			if res.err != nil {
				l.fail(&session.DebugLoopError{Message: "primary channel receive failed", Underlying: res.err})
				return
			}

			switch res.resp.Type {
			case debugproto.ResponseEvent:
				if res.resp.Event == nil {
					l.fail(&session.InternalCommunicationError{Message: "event response missing event payload"})
					return
				}
				if !l.handleEvent(*res.resp.Event, primary, aux) {
					return
				}

			case debugproto.ResponseError:
				l.fail(&session.DebugLoopError{Message: res.resp.Message})
				return

			default:
				l.fail(&session.InternalCommunicationError{Message: fmt.Sprintf("unexpected response on primary channel: %s", res.resp.Type)})
				return
			}

		case cmd, ok := <-l.Record.Commands.Chan():
			if !ok || cmd.Kind == session.CmdStop {
				l.toStopped()
				return
			}
			// Any other command while Running has no defined transition
			// (spec §4.3's table has no Running row for it); Manager
			// gates these to Paused-only before they ever reach the
			// queue, so this is unreachable in practice. Drop it.
		}
	}
}

// primaryResult is the outcome of one asynchronous primary.Recv() call.
type primaryResult struct {
	resp debugproto.Response
	err  error
}

// recvAsync runs one Recv() on its own goroutine so the caller can select
// it against other blocking sources. The channel is buffered so the
// goroutine never leaks blocked on a send nobody reads (the loop moving on
// without consuming this particular result, e.g. after a Stop).
func recvAsync(ch debugproto.Channel) <-chan primaryResult {
	out := make(chan primaryResult, 1)
	go func() {
		resp, err := ch.Recv()
		out <- primaryResult{resp, err}
	}()
	return out
}

// handleEvent processes one server event per spec §4.3's event-handling
// steps. It returns true if the loop should keep reading from Primary
// (the event auto-continued, or a subsequent pause was resumed) and false
// if the loop has reached a terminal state.
func (l *Loop) handleEvent(e debugproto.Event, primary, aux debugproto.Channel) bool {
	rec := l.Record

	rec.Mu.Lock()
	rec.Events = append(rec.Events, e)
	dllName := ApplyToTables(rec, e)
	rec.Mu.Unlock()

	if e.Type == debugproto.EventProcessExited {
		rec.Mu.Lock()
		rec.Status = session.StatusStopped
		rec.CurrentEvent = nil
		rec.CurrentContext = nil
		rec.DebugResult = fmt.Sprintf("process exited with code %d", e.ExitCode)
		rec.Mu.Unlock()
		l.emitSnapshot()
		return false
	}

	kind := Classify(e.Type)
	if kind == session.EventKindOutput {
		l.Logs.Log(rec.ID, "INFO", "OutputDebugString: "+e.Output)
	}

	if !l.Policy.Get().ShouldPause(kind) {
		switch e.Type {
		case debugproto.EventDllLoaded:
			if dllName != "" {
				l.Emitter.EmitDllLoaded(rec.ID, dllName, e.Base)
			}
		case debugproto.EventDllUnloaded:
			if dllName != "" {
				l.Emitter.EmitDllUnloaded(rec.ID, dllName, e.Base)
			}
		}
		l.emitSnapshot()
		return true
	}

	ctx, err := l.fetchContext(aux, e.ProcessID, e.ThreadID)
	if err != nil {
		l.fail(&session.DebugLoopError{Message: "get_thread_context failed", Underlying: err})
		return false
	}

	info := ToEventInfo(e)
	rec.Mu.Lock()
	rec.CurrentEvent = &info
	rec.CurrentContext = ctx
	rec.Status = session.StatusPaused
	rec.Mu.Unlock()
	l.emitSnapshot()

	return l.pausedDispatch(primary, aux)
}

// pausedDispatch blocks on the session's command queue while Paused,
// servicing auxiliary queries without consuming an event (spec §4.3
// "Command dispatch while Paused"). It returns true once a continuation
// (Go/StepIn/StepOver/StepOut) has been sent and the resulting server
// response kept the loop alive, and false once the loop has reached a
// terminal state.
func (l *Loop) pausedDispatch(primary, aux debugproto.Channel) bool {
	rec := l.Record

	for {
		cmd, ok := rec.Commands.Recv()
		if !ok {
			l.toStopped()
			return false
		}

		switch cmd.Kind {
		case session.CmdStop:
			l.toStopped()
			return false

		case session.CmdGo, session.CmdStepIn, session.CmdStepOver, session.CmdStepOut:
			sent, ok := l.sendContinuation(cmd, primary)
			if !ok {
				return false
			}
			if !sent {
				continue // step-out send failure: remain Paused.
			}
			cont, done, ok := l.recvAfterContinuation(cmd, primary, aux)
			if !ok {
				return false
			}
			if done {
				continue // step-out failure special case: remain Paused.
			}
			return cont

		default:
			l.handleAuxQuery(cmd, aux)
		}
	}
}

// sendContinuation issues the RPC for a Go/Step* command. A send failure
// for StepOut is the documented special case (log+toast, remain Paused),
// reported as sent=false, ok=true; any other send failure is terminal
// (ok=false).
func (l *Loop) sendContinuation(cmd session.UICommand, primary debugproto.Channel) (sent, ok bool) {
	req, err := stepRequest(cmd, l.Record)
	if err != nil {
		l.fail(&session.InternalCommunicationError{Message: err.Error()})
		return false, false
	}

	if err := primary.Send(req); err != nil {
		if cmd.Kind == session.CmdStepOut {
			l.Logs.Log(l.Record.ID, "ERROR", fmt.Sprintf("step_out failed: %v", err))
			return false, true
		}
		l.fail(&session.DebugLoopError{Message: "failed to send continuation", Underlying: err})
		return false, false
	}
	return true, true
}

// recvAfterContinuation receives the server's reply to a just-sent
// continuation. done=true signals the step-out-failure special case (the
// caller should remain in pausedDispatch); ok=false signals a terminal
// transition has already happened.
func (l *Loop) recvAfterContinuation(cmd session.UICommand, primary, aux debugproto.Channel) (cont, done, ok bool) {
	rec := l.Record

	resp, err := primary.Recv()
	if err != nil {
		l.fail(&session.DebugLoopError{Message: "primary channel receive failed", Underlying: err})
		return false, false, false
	}

	switch resp.Type {
	case debugproto.ResponseError:
		if cmd.Kind == session.CmdStepOut {
			l.Logs.Log(rec.ID, "ERROR", fmt.Sprintf("step_out failed: %s", resp.Message))
			return false, true, true
		}
		l.fail(&session.DebugLoopError{Message: resp.Message})
		return false, false, false

	case debugproto.ResponseEvent:
		if resp.Event == nil {
			l.fail(&session.InternalCommunicationError{Message: "event response missing event payload"})
			return false, false, false
		}
		rec.Mu.Lock()
		rec.Status = session.StatusRunning
		rec.CurrentEvent = nil
		rec.CurrentContext = nil
		rec.Mu.Unlock()
		return l.handleEvent(*resp.Event, primary, aux), false, true

	default:
		l.fail(&session.InternalCommunicationError{Message: fmt.Sprintf("unexpected response on primary channel: %s", resp.Type)})
		return false, false, false
	}
}

// handleAuxQuery services one Paused-mode query against the auxiliary
// channel and emits its targeted event; the loop remains Paused regardless
// of outcome.
func (l *Loop) handleAuxQuery(cmd session.UICommand, aux debugproto.Channel) {
	rec := l.Record
	pid, tid := currentPidTid(rec)

	switch cmd.Kind {
	case session.CmdDisassembly:
		arch := cmd.Arch
		if arch == "" {
			rec.Mu.RLock()
			if rec.CurrentContext != nil {
				arch = rec.CurrentContext.Arch
			}
			rec.Mu.RUnlock()
		}
		resp, err := l.auxSendRecv(aux, debugproto.Request{
			Type: debugproto.RequestDisassembleMemory, ProcessID: pid,
			Address: cmd.Address, Count: cmd.Count, Arch: arch,
		})
		if err != nil {
			l.Emitter.EmitDisassemblyError(rec.ID, err.Error())
			return
		}
		if resp.Type != debugproto.ResponseInstructions {
			l.Emitter.EmitDisassemblyError(rec.ID, unexpectedResponse(resp.Type))
			return
		}
		l.Emitter.EmitDisassemblyUpdated(rec.ID, FormatInstructions(resp.Instructions))

	case session.CmdGetCallStack:
		resp, err := l.auxSendRecv(aux, debugproto.Request{Type: debugproto.RequestGetCallStack, ProcessID: pid, ThreadID: tid})
		if err != nil {
			l.Emitter.EmitCallStackError(rec.ID, err.Error())
			return
		}
		if resp.Type != debugproto.ResponseCallStack {
			l.Emitter.EmitCallStackError(rec.ID, unexpectedResponse(resp.Type))
			return
		}
		l.Emitter.EmitCallStackUpdated(rec.ID, FormatFrames(resp.Frames))

	case session.CmdSearchSymbols:
		limit := cmd.Limit
		if limit <= 0 {
			limit = 30
		}
		resp, err := l.auxSendRecv(aux, debugproto.Request{Type: debugproto.RequestFindSymbol, Pattern: cmd.Pattern, MaxResults: limit})
		if err != nil {
			l.Emitter.EmitSymbolsError(rec.ID, err.Error())
			return
		}
		if resp.Type != debugproto.ResponseResolvedSymbolList {
			l.Emitter.EmitSymbolsError(rec.ID, unexpectedResponse(resp.Type))
			return
		}
		l.Emitter.EmitSymbolsUpdated(rec.ID, resp.Symbols)

	case session.CmdReadMemory:
		resp, err := l.auxSendRecv(aux, debugproto.Request{Type: debugproto.RequestReadMemory, ProcessID: pid, Address: cmd.Address, Size: cmd.Size})
		if err != nil {
			l.Emitter.EmitMemoryReadError(rec.ID, err.Error())
			return
		}
		if resp.Type != debugproto.ResponseMemoryData || len(resp.Data) == 0 {
			msg := unexpectedResponse(resp.Type)
			if resp.Type == debugproto.ResponseMemoryData {
				msg = "memory read returned zero bytes"
			}
			l.Emitter.EmitMemoryReadError(rec.ID, msg)
			return
		}
		l.Emitter.EmitMemoryReadUpdated(rec.ID, cmd.Address, cmd.Size, resp.Data)

	case session.CmdWriteMemory:
		resp, err := l.auxSendRecv(aux, debugproto.Request{Type: debugproto.RequestWriteMemory, ProcessID: pid, Address: cmd.Address, Bytes: cmd.Data})
		if err != nil {
			l.Emitter.EmitMemoryWriteError(rec.ID, err.Error())
			return
		}
		if resp.Type != debugproto.ResponseWriteAck {
			l.Emitter.EmitMemoryWriteError(rec.ID, unexpectedResponse(resp.Type))
			return
		}
		l.Emitter.EmitMemoryWriteResult(rec.ID, resp.BytesWritten)

	case session.CmdGetMemoryRegions:
		resp, err := l.auxSendRecv(aux, debugproto.Request{Type: debugproto.RequestEnumerateMemoryRegions, ProcessID: pid})
		if err != nil {
			l.Emitter.EmitMemoryRegionsError(rec.ID, err.Error())
			return
		}
		if resp.Type != debugproto.ResponseMemoryRegions {
			l.Emitter.EmitMemoryRegionsError(rec.ID, unexpectedResponse(resp.Type))
			return
		}
		l.Emitter.EmitMemoryRegionsUpdated(rec.ID, resp.Regions)
	}
}

func (l *Loop) auxSendRecv(aux debugproto.Channel, req debugproto.Request) (debugproto.Response, error) {
	if err := aux.Send(req); err != nil {
		return debugproto.Response{}, err
	}
	resp, err := aux.Recv()
	if err != nil {
		return debugproto.Response{}, err
	}
	if resp.Type == debugproto.ResponseError {
		return resp, fmt.Errorf("%s", resp.Message)
	}
	return resp, nil
}

func (l *Loop) fetchContext(aux debugproto.Channel, pid, tid uint32) (*debugproto.ThreadContext, error) {
	resp, err := l.auxSendRecv(aux, debugproto.Request{Type: debugproto.RequestGetThreadContext, ProcessID: pid, ThreadID: tid})
	if err != nil {
		return nil, err
	}
	if resp.Type != debugproto.ResponseThreadContext || resp.Context == nil {
		return nil, fmt.Errorf("unexpected response to get_thread_context: %s", resp.Type)
	}
	return resp.Context, nil
}

func (l *Loop) setRunning() {
	rec := l.Record
	rec.Mu.Lock()
	rec.Status = session.StatusRunning
	rec.Mu.Unlock()
	l.emitSnapshot()
}

func (l *Loop) fail(err error) {
	rec := l.Record
	rec.Mu.Lock()
	rec.Status = session.StatusError
	rec.ErrorMessage = err.Error()
	rec.DebugResult = err.Error()
	rec.CurrentEvent = nil
	rec.Mu.Unlock()
	l.Logs.Log(rec.ID, "ERROR", err.Error())
	l.emitSnapshot()
}

func (l *Loop) toStopped() {
	rec := l.Record
	rec.Mu.Lock()
	rec.Status = session.StatusStopped
	rec.CurrentEvent = nil
	rec.CurrentContext = nil
	if rec.DebugResult == "" {
		rec.DebugResult = "stopped"
	}
	rec.Mu.Unlock()
	l.emitSnapshot()
}

func (l *Loop) emitSnapshot() {
	l.Emitter.EmitSessionUpdated(l.Record.ToSnapshot())
}

func unexpectedResponse(t debugproto.ResponseType) string {
	return fmt.Sprintf("unexpected auxiliary response: %s", t)
}

// currentPidTid reads the (pid, tid) pair the current pausing event
// belongs to, the target of every Paused-mode command.
func currentPidTid(rec *session.Record) (uint32, uint32) {
	rec.Mu.RLock()
	defer rec.Mu.RUnlock()
	if rec.CurrentEvent != nil {
		return rec.CurrentEvent.ProcessID, rec.CurrentEvent.ThreadID
	}
	return 0, 0
}

// stepRequest builds the Primary request for a Go/StepIn/StepOver/StepOut
// command, targeting the (pid, tid) of the current pausing event.
func stepRequest(cmd session.UICommand, rec *session.Record) (debugproto.Request, error) {
	pid, tid := currentPidTid(rec)
	switch cmd.Kind {
	case session.CmdGo:
		return debugproto.Request{Type: debugproto.RequestContinue, ProcessID: pid, ThreadID: tid}, nil
	case session.CmdStepIn:
		return debugproto.Request{Type: debugproto.RequestStep, ProcessID: pid, ThreadID: tid, Kind: debugproto.StepInto}, nil
	case session.CmdStepOver:
		return debugproto.Request{Type: debugproto.RequestStep, ProcessID: pid, ThreadID: tid, Kind: debugproto.StepOver}, nil
	case session.CmdStepOut:
		return debugproto.Request{Type: debugproto.RequestStep, ProcessID: pid, ThreadID: tid, Kind: debugproto.StepOut}, nil
	default:
		return debugproto.Request{}, fmt.Errorf("not a continuation command: %s", cmd.Kind)
	}
}
