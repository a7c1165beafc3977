// Package controlloop implements the per-session finite-state machine that
// drives a debug session from launch to termination: the Control Loop, the
// Event Translator it uses to turn server events into UI-facing state, and
// the stop-policy-driven pause/continue decision.
package controlloop

import (
	"fmt"

	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
	"github.com/georgi-georgiev/dbgmesh/internal/session"
)

// Classify maps a server event variant onto the stop-policy classification
// used to decide pause vs. auto-continue. ProcessExited has no
// classification: it is handled terminally before Classify is consulted.
func Classify(t debugproto.EventType) session.EventKind {
	switch t {
	case debugproto.EventProcessCreated:
		return session.EventKindProcessCreate
	case debugproto.EventThreadCreated:
		return session.EventKindThreadCreate
	case debugproto.EventThreadExited:
		return session.EventKindThreadExit
	case debugproto.EventDllLoaded:
		return session.EventKindDllLoad
	case debugproto.EventDllUnloaded:
		return session.EventKindDllUnload
	case debugproto.EventInitialBreakpoint:
		return session.EventKindInitialBreakpoint
	case debugproto.EventOutput:
		return session.EventKindOutput
	default:
		return session.EventKindUnclassified
	}
}

// details renders the human-readable description carried on EventInfo, one
// format per server event variant.
func details(e debugproto.Event) string {
	switch e.Type {
	case debugproto.EventProcessCreated:
		image := e.Image
		if image == "" {
			image = "Unknown"
		}
		size := "Unknown"
		if e.Size != 0 {
			size = fmt.Sprintf("0x%X", e.Size)
		}
		return fmt.Sprintf("Process created: PID=%d, TID=%d, Image=%s, Base=0x%X, Size=%s",
			e.ProcessID, e.ThreadID, image, e.Base, size)

	case debugproto.EventProcessExited:
		return fmt.Sprintf("Process exited: PID=%d, Exit Code=%d", e.ProcessID, e.ExitCode)

	case debugproto.EventThreadCreated:
		return fmt.Sprintf("Thread created: PID=%d, TID=%d, Start Address=0x%X",
			e.ProcessID, e.ThreadID, e.StartAddress)

	case debugproto.EventThreadExited:
		return fmt.Sprintf("Thread exited: PID=%d, TID=%d, Exit Code=%d",
			e.ProcessID, e.ThreadID, e.ExitCode)

	case debugproto.EventDllLoaded:
		name := e.Name
		if name == "" {
			name = "Unknown"
		}
		return fmt.Sprintf("DLL loaded: PID=%d, TID=%d, Name=%s, Base=0x%X, Size=%d",
			e.ProcessID, e.ThreadID, name, e.Base, e.Size)

	case debugproto.EventDllUnloaded:
		return fmt.Sprintf("DLL unloaded: PID=%d, TID=%d, Base=0x%X",
			e.ProcessID, e.ThreadID, e.Base)

	case debugproto.EventBreakpoint:
		return fmt.Sprintf("Breakpoint hit: PID=%d, TID=%d, Address=0x%X",
			e.ProcessID, e.ThreadID, e.Address)

	case debugproto.EventException:
		return fmt.Sprintf("Exception occurred: PID=%d, TID=%d, Code=0x%x, Address=0x%x, First Chance=%t",
			e.ProcessID, e.ThreadID, e.Code, e.Address, e.FirstChance)

	case debugproto.EventOutput:
		return fmt.Sprintf("Debug output: PID=%d, TID=%d, Output=%s", e.ProcessID, e.ThreadID, e.Output)

	case debugproto.EventRip:
		return fmt.Sprintf("RIP event: PID=%d, TID=%d, Error=%s, Type=%d",
			e.ProcessID, e.ThreadID, e.Error, e.EventKind)

	case debugproto.EventInitialBreakpoint:
		return fmt.Sprintf("Initial breakpoint: PID=%d, TID=%d", e.ProcessID, e.ThreadID)

	default:
		return "Unknown debug event"
	}
}

// canContinue is false only for ProcessExited.
func canContinue(e debugproto.Event) bool {
	return e.Type != debugproto.EventProcessExited
}

// address is populated for ThreadCreated (start address), Breakpoint and
// Exception (fault address); otherwise nil (the record snapshot falls back
// to the current context's PC/RIP).
func address(e debugproto.Event) *uint64 {
	switch e.Type {
	case debugproto.EventThreadCreated:
		v := e.StartAddress
		return &v
	case debugproto.EventBreakpoint, debugproto.EventException:
		v := e.Address
		return &v
	default:
		return nil
	}
}

// ToEventInfo renders a server event as the UI-facing EventInfo. Context is
// left nil; the control loop fills it in once (and if) a register snapshot
// has been fetched for the pausing event.
func ToEventInfo(e debugproto.Event) session.EventInfo {
	info := session.EventInfo{
		EventType:   e.Type,
		ProcessID:   e.ProcessID,
		ThreadID:    e.ThreadID,
		Details:     details(e),
		CanContinue: canContinue(e),
		Address:     address(e),
	}
	if e.Type == debugproto.EventProcessExited {
		info.ThreadID = 0
	}
	return info
}

// ApplyToTables mutates the record's module/thread tables per the
// event-driven rules, applied regardless of the pause decision. It returns
// the captured name for a DllLoaded/DllUnloaded event, for callers that
// need to emit a targeted dll-loaded/dll-unloaded event (the name must be
// captured before DllUnloaded removes the entry). Callers must hold
// rec.Mu for writing.
func ApplyToTables(rec *session.Record, e debugproto.Event) (dllName string) {
	switch e.Type {
	case debugproto.EventProcessCreated:
		name := e.Image
		if name == "" {
			name = "main.exe"
		}
		rec.Modules[e.Base] = session.Module{Name: name, Base: e.Base, Size: e.Size}
		rec.Threads[e.ThreadID] = session.Thread{ID: e.ThreadID, StartAddress: e.Base}

	case debugproto.EventDllLoaded:
		if _, exists := rec.Modules[e.Base]; !exists {
			name := e.Name
			if name == "" {
				name = fmt.Sprintf("Unknown_0x%X", e.Base)
			}
			rec.Modules[e.Base] = session.Module{Name: name, Base: e.Base, Size: e.Size}
		}
		dllName = rec.Modules[e.Base].Name

	case debugproto.EventDllUnloaded:
		if m, exists := rec.Modules[e.Base]; exists {
			dllName = m.Name
			delete(rec.Modules, e.Base)
		}

	case debugproto.EventThreadCreated:
		if _, exists := rec.Threads[e.ThreadID]; !exists {
			rec.Threads[e.ThreadID] = session.Thread{ID: e.ThreadID, StartAddress: e.StartAddress}
		}

	case debugproto.EventThreadExited:
		delete(rec.Threads, e.ThreadID)

	case debugproto.EventProcessExited:
		rec.Modules = make(map[uint64]session.Module)
		rec.Threads = make(map[uint32]session.Thread)
	}

	return dllName
}
