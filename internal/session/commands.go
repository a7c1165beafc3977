package session

import (
	"fmt"

	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
)

// UICommandKind tags which variant a UICommand carries.
type UICommandKind string

const (
	CmdGo               UICommandKind = "go"
	CmdStepIn           UICommandKind = "step_in"
	CmdStepOver         UICommandKind = "step_over"
	CmdStepOut          UICommandKind = "step_out"
	CmdStop             UICommandKind = "stop"
	CmdDisassembly      UICommandKind = "disassembly"
	CmdGetCallStack     UICommandKind = "call_stack"
	CmdSearchSymbols    UICommandKind = "search_symbols"
	CmdReadMemory       UICommandKind = "read_memory"
	CmdWriteMemory      UICommandKind = "write_memory"
	CmdGetMemoryRegions UICommandKind = "memory_regions"
)

// UICommand is one command dispatched from the front-end to a session's
// control loop. Paused-mode queries (Disassembly, GetCallStack,
// SearchSymbols, ReadMemory, WriteMemory, GetMemoryRegions) do not consume
// an event and leave the loop Paused; Go/StepIn/StepOver/StepOut resume the
// primary channel; Stop is the cooperative cancellation signal.
type UICommand struct {
	Kind UICommandKind

	// Disassembly
	Address uint64
	Count   uint32
	Arch    debugproto.Arch

	// SearchSymbols
	Pattern string
	Limit   int

	// ReadMemory
	Size uint64

	// WriteMemory
	Data []byte
}

// CommandQueue is the single-producer/single-consumer channel of UICommand
// values between the front-end command dispatcher and a session's control
// loop. Ordering is FIFO; Close is the cancellation signal.
type CommandQueue struct {
	ch chan UICommand
}

// NewCommandQueue creates a fresh queue buffered to 64 commands; Send
// blocks while the buffer is full. A session
// installs a new one on every Start/Reset.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{ch: make(chan UICommand, 64)}
}

// Send enqueues a command. It returns an InternalCommunicationError if the
// queue has already been closed (the session ended).
func (q *CommandQueue) Send(cmd UICommand) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InternalCommunicationError{Message: fmt.Sprintf("ui command queue closed: %v", r)}
		}
	}()
	q.ch <- cmd
	return nil
}

// Recv blocks until a command is available or the queue is closed, in
// which case ok is false.
func (q *CommandQueue) Recv() (cmd UICommand, ok bool) {
	cmd, ok = <-q.ch
	return cmd, ok
}

// Chan exposes the underlying channel for use in a select alongside other
// blocking sources (the control loop selects it against the primary
// channel's next response while Running, since only Stop is meaningful
// there and the loop must not miss it while also awaiting an event).
func (q *CommandQueue) Chan() <-chan UICommand {
	return q.ch
}

// Close drops the sender endpoint, the documented cancellation mechanism:
// a blocked Recv unblocks immediately with ok=false.
func (q *CommandQueue) Close() {
	defer func() { recover() }() // Close is idempotent from the caller's perspective.
	close(q.ch)
}
