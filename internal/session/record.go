package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
)

// Status is the lifecycle state of a session's control loop.
type Status string

const (
	StatusCreated Status = "Created"
	StatusRunning Status = "Running"
	StatusPaused  Status = "Paused"
	StatusStopped Status = "Stopped"
	StatusError   Status = "Error"
)

// Module is one loaded image, keyed by its base address.
type Module struct {
	Name string `json:"name"`
	Base uint64 `json:"base_address"`
	Size uint64 `json:"size,omitempty"`
}

// Thread is one live thread, keyed by its id.
type Thread struct {
	ID           uint32 `json:"id"`
	StartAddress uint64 `json:"start_address"`
}

// WindowState tracks which auxiliary panes the front-end currently has
// open. It is surfaced on every snapshot; targeted events are emitted
// regardless of it.
type WindowState struct {
	Disassembly bool `json:"disassembly"`
	Registers   bool `json:"registers"`
	CallStack   bool `json:"call_stack"`
}

// EventInfo is the flattened, serializable projection of a server debug
// event surfaced to the UI.
type EventInfo struct {
	EventType   debugproto.EventType      `json:"event_type"`
	ProcessID   uint32                    `json:"process_id"`
	ThreadID    uint32                    `json:"thread_id"`
	Details     string                    `json:"details"`
	CanContinue bool                      `json:"can_continue"`
	Address     *uint64                   `json:"address,omitempty"`
	Context     *debugproto.ThreadContext `json:"context,omitempty"`
}

// Record is the authoritative state of one debug session. It is shared by
// reference between the Store and the session's control-loop goroutine for
// the loop's lifetime; Mu guards every field below it.
type Record struct {
	ID string

	Mu sync.RWMutex

	Name          string
	ServerURL     string
	LaunchCommand string
	CreatedAt     time.Time

	Status       Status
	ErrorMessage string

	Events  []debugproto.Event
	Modules map[uint64]Module
	Threads map[uint32]Thread

	CurrentEvent   *EventInfo
	CurrentContext *debugproto.ThreadContext

	Commands *CommandQueue

	DebugResult string

	WindowState WindowState

	// running guards against a double Start: true while a control-loop
	// goroutine owns this record's Commands receiver.
	running bool
}

// NewRecord constructs a freshly Created record stamped with the current
// time as CreatedAt. The caller supplies the id (Store.Create generates
// one) and installs the record into a Store.
func NewRecord(id, name, serverURL, launchCommand string) *Record {
	return &Record{
		ID:            id,
		Name:          name,
		ServerURL:     serverURL,
		LaunchCommand: launchCommand,
		CreatedAt:     time.Now().UTC(),
		Status:        StatusCreated,
		Modules:       make(map[uint64]Module),
		Threads:       make(map[uint32]Thread),
		Commands:      NewCommandQueue(),
	}
}

// Snapshot is the UI-facing, serializable view of a Record.
type Snapshot struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	ServerURL     string      `json:"server_url"`
	LaunchCommand string      `json:"launch_command"`
	CreatedAt     string      `json:"created_at"`
	Status        Status      `json:"status"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	Modules       []Module    `json:"modules"`
	Threads       []Thread    `json:"threads"`
	CurrentEvent  *EventInfo  `json:"current_event,omitempty"`
	WindowState   WindowState `json:"window_state"`
}

// ToSnapshot copies the record's UI-visible fields under a read lock. When
// the current event carries no address of its own, the snapshot defaults
// it from the current register context's RIP/PC, mirroring the behavior of
// the original debugger front-end this system replaces.
func (r *Record) ToSnapshot() Snapshot {
	r.Mu.RLock()
	defer r.Mu.RUnlock()

	snap := Snapshot{
		ID:            r.ID,
		Name:          r.Name,
		ServerURL:     r.ServerURL,
		LaunchCommand: r.LaunchCommand,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		Status:        r.Status,
		ErrorMessage:  r.ErrorMessage,
		WindowState:   r.WindowState,
	}

	for _, m := range r.Modules {
		snap.Modules = append(snap.Modules, m)
	}
	for _, t := range r.Threads {
		snap.Threads = append(snap.Threads, t)
	}

	if r.CurrentEvent != nil {
		info := *r.CurrentEvent
		if info.Address == nil && r.CurrentContext != nil {
			if pc, ok := parseHexPC(r.CurrentContext); ok {
				info.Address = &pc
			}
		}
		if r.CurrentContext != nil {
			info.Context = r.CurrentContext
		}
		snap.CurrentEvent = &info
	}

	return snap
}

// parseHexPC parses the context's PC/RIP hex string back into a uint64,
// the address-defaulting fallback used when a debug event arrives without
// one of its own.
func parseHexPC(ctx *debugproto.ThreadContext) (uint64, bool) {
	hexStr := ctx.PC()
	if hexStr == "" {
		return 0, false
	}

	var v uint64
	if _, err := fmt.Sscanf(hexStr, "0x%x", &v); err != nil {
		return 0, false
	}
	return v, true
}

// reset clears the transient fields before a restart: events, modules,
// threads, the current event/context, the debug result, and installs a
// fresh command queue. Callers must hold Mu for writing.
func (r *Record) reset() {
	r.Events = nil
	r.Modules = make(map[uint64]Module)
	r.Threads = make(map[uint32]Thread)
	r.CurrentEvent = nil
	r.CurrentContext = nil
	r.DebugResult = ""
	r.Commands = NewCommandQueue()
}
