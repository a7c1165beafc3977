// Package emitter is the Event Emitter of spec §4.6: it publishes
// session-updated, session-removed, and the targeted query-result events
// to every front-end connected over WebSocket, without ever blocking the
// control loop that produced them.
package emitter

import (
	"encoding/json"
	"sync"

	"github.com/georgi-georgiev/dbgmesh/internal/controlloop"
	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
	"github.com/georgi-georgiev/dbgmesh/internal/session"
	"go.uber.org/zap"
)

// EventType tags a front-end-bound event envelope.
type EventType string

const (
	EventSessionUpdated     EventType = "session-updated"
	EventSessionRemoved     EventType = "session-removed"
	EventDisassemblyUpdated EventType = "disassembly-updated"
	EventDisassemblyError   EventType = "disassembly-error"
	EventCallStackUpdated   EventType = "callstack-updated"
	EventCallStackError     EventType = "callstack-error"
	EventSymbolsUpdated     EventType = "symbols-updated"
	EventSymbolsError       EventType = "symbols-error"
	EventMemoryReadUpdated  EventType = "memory-read-updated"
	EventMemoryReadError    EventType = "memory-read-error"
	EventMemoryWriteResult  EventType = "memory-write-result"
	EventMemoryWriteError   EventType = "memory-write-error"
	EventMemoryRegions      EventType = "memory-regions-updated"
	EventMemoryRegionsError EventType = "memory-regions-error"
	EventDllLoaded          EventType = "dll-loaded"
	EventDllUnloaded        EventType = "dll-unloaded"
)

// Event is the envelope broadcast to every connected front-end. Every
// targeted event (everything but session-updated/session-removed) carries
// the originating session id alongside its operation-specific payload.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// client is one connected WebSocket front-end. Registration is global, not
// per-session: the front-end renders every open session at once.
type client struct {
	id   string
	send chan *Event
}

// Hub fans out Event values to every registered client. It implements both
// session.EventSink (session-updated/session-removed) and
// controlloop.Emitter (the targeted query events), so one Hub backs both
// collaborators a control loop needs.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan *Event
	logger     *zap.Logger
}

var (
	_ session.EventSink   = (*Hub)(nil)
	_ controlloop.Emitter = (*Hub)(nil)
)

// NewHub constructs an unstarted Hub; call Run in its own goroutine before
// any client connects.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan *Event, 256),
		logger:     logger,
	}
}

// Run is the hub's single-goroutine event loop; it owns the clients map.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- event:
				default:
					// Client's buffer is full; drop rather than block the
					// hub (spec §4.6 "emission must not block the control
					// loop").
					h.logger.Warn("dropping event for slow client", zap.String("client_id", c.id), zap.String("type", string(event.Type)))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) publish(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("emitter broadcast queue full, dropping event", zap.String("type", string(event.Type)))
	}
}

// EmitSessionUpdated implements session.EventSink.
func (h *Hub) EmitSessionUpdated(snap session.Snapshot) {
	h.publish(&Event{Type: EventSessionUpdated, SessionID: snap.ID, Payload: snap})
}

// EmitSessionRemoved implements session.EventSink.
func (h *Hub) EmitSessionRemoved(id string) {
	h.publish(&Event{Type: EventSessionRemoved, SessionID: id})
}

// EmitDllLoaded implements controlloop.Emitter.
func (h *Hub) EmitDllLoaded(sessionID, name string, base uint64) {
	h.publish(&Event{Type: EventDllLoaded, SessionID: sessionID, Payload: map[string]interface{}{"name": name, "base_address": base}})
}

// EmitDllUnloaded implements controlloop.Emitter.
func (h *Hub) EmitDllUnloaded(sessionID, name string, base uint64) {
	h.publish(&Event{Type: EventDllUnloaded, SessionID: sessionID, Payload: map[string]interface{}{"name": name, "base_address": base}})
}

// EmitDisassemblyUpdated implements controlloop.Emitter.
func (h *Hub) EmitDisassemblyUpdated(sessionID string, instructions []controlloop.DisassembledInstruction) {
	h.publish(&Event{Type: EventDisassemblyUpdated, SessionID: sessionID, Payload: instructions})
}

// EmitDisassemblyError implements controlloop.Emitter.
func (h *Hub) EmitDisassemblyError(sessionID, message string) {
	h.publish(&Event{Type: EventDisassemblyError, SessionID: sessionID, Payload: message})
}

// EmitCallStackUpdated implements controlloop.Emitter.
func (h *Hub) EmitCallStackUpdated(sessionID string, frames []controlloop.CallStackFrameView) {
	h.publish(&Event{Type: EventCallStackUpdated, SessionID: sessionID, Payload: frames})
}

// EmitCallStackError implements controlloop.Emitter.
func (h *Hub) EmitCallStackError(sessionID, message string) {
	h.publish(&Event{Type: EventCallStackError, SessionID: sessionID, Payload: message})
}

// EmitSymbolsUpdated implements controlloop.Emitter.
func (h *Hub) EmitSymbolsUpdated(sessionID string, symbols []debugproto.Symbol) {
	h.publish(&Event{Type: EventSymbolsUpdated, SessionID: sessionID, Payload: symbols})
}

// EmitSymbolsError implements controlloop.Emitter.
func (h *Hub) EmitSymbolsError(sessionID, message string) {
	h.publish(&Event{Type: EventSymbolsError, SessionID: sessionID, Payload: message})
}

// EmitMemoryReadUpdated implements controlloop.Emitter.
func (h *Hub) EmitMemoryReadUpdated(sessionID string, address, requestedSize uint64, data []byte) {
	h.publish(&Event{Type: EventMemoryReadUpdated, SessionID: sessionID, Payload: map[string]interface{}{
		"address":        address,
		"requested_size": requestedSize,
		"data":           data,
	}})
}

// EmitMemoryReadError implements controlloop.Emitter.
func (h *Hub) EmitMemoryReadError(sessionID, message string) {
	h.publish(&Event{Type: EventMemoryReadError, SessionID: sessionID, Payload: message})
}

// EmitMemoryWriteResult implements controlloop.Emitter.
func (h *Hub) EmitMemoryWriteResult(sessionID string, bytesWritten int) {
	h.publish(&Event{Type: EventMemoryWriteResult, SessionID: sessionID, Payload: map[string]interface{}{"bytes_written": bytesWritten}})
}

// EmitMemoryWriteError implements controlloop.Emitter.
func (h *Hub) EmitMemoryWriteError(sessionID, message string) {
	h.publish(&Event{Type: EventMemoryWriteError, SessionID: sessionID, Payload: message})
}

// EmitMemoryRegionsUpdated implements controlloop.Emitter.
func (h *Hub) EmitMemoryRegionsUpdated(sessionID string, regions []debugproto.MemoryRegion) {
	h.publish(&Event{Type: EventMemoryRegions, SessionID: sessionID, Payload: regions})
}

// EmitMemoryRegionsError implements controlloop.Emitter.
func (h *Hub) EmitMemoryRegionsError(sessionID, message string) {
	h.publish(&Event{Type: EventMemoryRegionsError, SessionID: sessionID, Payload: message})
}

// marshal renders an Event as JSON for the wire; a helper so Handler
// doesn't need to know the Event shape.
func marshal(event *Event) ([]byte, error) {
	return json.Marshal(event)
}
