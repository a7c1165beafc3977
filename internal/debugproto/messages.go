// Package debugproto defines the request/response/event contract used to
// talk to the remote debug server over the primary and auxiliary channels.
// The wire codec itself (framing, transport) lives in transport.go; this
// file only names the shapes that cross it.
package debugproto

// StepKind selects the granularity of a Step request.
type StepKind string

const (
	StepInto StepKind = "into"
	StepOver StepKind = "over"
	StepOut  StepKind = "out"
)

// RequestType tags which variant a Request carries.
type RequestType string

const (
	RequestLaunch                 RequestType = "Launch"
	RequestContinue               RequestType = "Continue"
	RequestStep                   RequestType = "Step"
	RequestGetThreadContext       RequestType = "GetThreadContext"
	RequestDisassembleMemory      RequestType = "DisassembleMemory"
	RequestGetCallStack           RequestType = "GetCallStack"
	RequestFindSymbol             RequestType = "FindSymbol"
	RequestReadMemory             RequestType = "ReadMemory"
	RequestWriteMemory            RequestType = "WriteMemory"
	RequestEnumerateMemoryRegions RequestType = "EnumerateMemoryRegions"
)

// Request is a tagged union over the requests the core issues on the
// primary and auxiliary channels. Only the fields relevant to Type are
// populated.
type Request struct {
	Type RequestType `json:"type"`

	Command string `json:"command,omitempty"` // Launch

	ProcessID uint32 `json:"process_id,omitempty"`
	ThreadID  uint32 `json:"thread_id,omitempty"` // Continue, Step, GetThreadContext

	Kind StepKind `json:"kind,omitempty"` // Step

	Address uint64 `json:"address,omitempty"` // DisassembleMemory, ReadMemory, WriteMemory
	Count   uint32 `json:"count,omitempty"`   // DisassembleMemory
	Arch    Arch   `json:"arch,omitempty"`    // DisassembleMemory

	Pattern    string `json:"pattern,omitempty"`     // FindSymbol
	MaxResults int    `json:"max_results,omitempty"` // FindSymbol

	Size  uint64 `json:"size,omitempty"`  // ReadMemory
	Bytes []byte `json:"bytes,omitempty"` // WriteMemory
}

// ResponseType tags which variant a Response carries.
type ResponseType string

const (
	ResponseEvent              ResponseType = "Event"
	ResponseAck                ResponseType = "Ack"
	ResponseError              ResponseType = "Error"
	ResponseThreadContext      ResponseType = "ThreadContext"
	ResponseInstructions       ResponseType = "Instructions"
	ResponseCallStack          ResponseType = "CallStack"
	ResponseResolvedSymbolList ResponseType = "ResolvedSymbolList"
	ResponseMemoryData         ResponseType = "MemoryData"
	ResponseWriteAck           ResponseType = "WriteAck"
	ResponseMemoryRegions      ResponseType = "MemoryRegions"
)

// Response is a tagged union over the responses the core consumes on the
// primary and auxiliary channels.
type Response struct {
	Type ResponseType `json:"type"`

	Event *Event `json:"event,omitempty"`

	Message string `json:"message,omitempty"` // Error

	Context *ThreadContext `json:"context,omitempty"` // ThreadContext

	Instructions []Instruction `json:"instructions,omitempty"` // Instructions

	Frames []CallStackFrame `json:"frames,omitempty"` // CallStack

	Symbols []Symbol `json:"symbols,omitempty"` // ResolvedSymbolList

	Data []byte `json:"data,omitempty"` // MemoryData

	BytesWritten int `json:"bytes_written,omitempty"` // WriteAck

	Regions []MemoryRegion `json:"regions,omitempty"` // MemoryRegions
}

// Instruction is one disassembled instruction as reported by the server.
type Instruction struct {
	Address  uint64 `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Bytes    []byte `json:"bytes"`
	Mnemonic string `json:"mnemonic"`
	OpStr    string `json:"op_str"`
}

// CallStackFrame is one unwound stack frame.
type CallStackFrame struct {
	FrameNumber    int    `json:"frame_number"`
	InstructionPtr uint64 `json:"instruction_pointer"`
	StackPointer   uint64 `json:"stack_pointer"`
	FramePointer   uint64 `json:"frame_pointer"`
	SymbolInfo     string `json:"symbol_info,omitempty"`
}

// Symbol is one resolved symbol match.
type Symbol struct {
	Name        string `json:"name"`
	ModuleName  string `json:"module_name"`
	RVA         uint32 `json:"rva"`
	VA          uint64 `json:"va"`
	DisplayName string `json:"display_name"` // "<module>!<name>"
}

// MemoryRegion is one entry of the debuggee's address space map.
type MemoryRegion struct {
	BaseAddress uint64 `json:"base_address"`
	Size        uint64 `json:"size"`
	Protection  string `json:"protection"`
	State       string `json:"state"`
}

// EventType tags which variant an Event carries.
type EventType string

const (
	EventProcessCreated    EventType = "ProcessCreated"
	EventProcessExited     EventType = "ProcessExited"
	EventThreadCreated     EventType = "ThreadCreated"
	EventThreadExited      EventType = "ThreadExited"
	EventDllLoaded         EventType = "DllLoaded"
	EventDllUnloaded       EventType = "DllUnloaded"
	EventBreakpoint        EventType = "Breakpoint"
	EventException         EventType = "Exception"
	EventOutput            EventType = "Output"
	EventRip               EventType = "RipEvent"
	EventInitialBreakpoint EventType = "InitialBreakpoint"
	EventUnknown           EventType = "Unknown"
)

// Event is a debug event as reported by the server on the primary channel.
// Only the fields relevant to Type are populated.
type Event struct {
	Type EventType `json:"type"`

	ProcessID uint32 `json:"process_id"`
	ThreadID  uint32 `json:"thread_id"`

	Image string `json:"image,omitempty"` // ProcessCreated
	Base  uint64 `json:"base,omitempty"`  // ProcessCreated, DllLoaded, DllUnloaded
	Size  uint64 `json:"size,omitempty"`  // ProcessCreated, DllLoaded

	ExitCode int32 `json:"exit_code,omitempty"` // ProcessExited, ThreadExited

	StartAddress uint64 `json:"start_address,omitempty"` // ThreadCreated

	Name string `json:"name,omitempty"` // DllLoaded, DllUnloaded

	Address uint64 `json:"address,omitempty"` // Breakpoint, Exception

	Code        uint32 `json:"code,omitempty"`         // Exception
	FirstChance bool   `json:"first_chance,omitempty"` // Exception

	Output string `json:"output,omitempty"` // Output

	Error     string `json:"error,omitempty"`      // RipEvent
	EventKind uint32 `json:"event_kind,omitempty"` // RipEvent
}
