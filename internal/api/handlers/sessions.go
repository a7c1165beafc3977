package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/georgi-georgiev/dbgmesh/internal/controlloop"
	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
	"github.com/georgi-georgiev/dbgmesh/internal/logs"
	"github.com/georgi-georgiev/dbgmesh/internal/session"
)

// SessionsHandler is the front-end command surface of spec §6.1: one HTTP
// endpoint per command, translating each into a Store or Manager call and
// mapping the resulting error taxonomy onto HTTP status codes. This layer
// is explicitly peripheral (spec §1 "any RPC/IPC binding works") — it
// exists only to make the core runnable end-to-end.
type SessionsHandler struct {
	store   *session.Store
	manager *controlloop.Manager
	policy  *session.PolicyStore
	logs    *logs.Store
}

// NewSessionsHandler wires a SessionsHandler from its collaborators.
func NewSessionsHandler(store *session.Store, manager *controlloop.Manager, policy *session.PolicyStore, logStore *logs.Store) *SessionsHandler {
	return &SessionsHandler{store: store, manager: manager, policy: policy, logs: logStore}
}

// statusFor maps the session error taxonomy (spec §7) onto an HTTP status.
func statusFor(err error) int {
	var notFound *session.NotFoundError
	var alreadyExists *session.AlreadyExistsError
	var invalidState *session.InvalidStateError
	var connFailed *session.ConnectionFailedError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &alreadyExists):
		return http.StatusConflict
	case errors.As(err, &invalidState):
		return http.StatusConflict
	case errors.As(err, &connFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

type createSessionRequest struct {
	Name          string `json:"name" binding:"required"`
	ServerURL     string `json:"server_url" binding:"required"`
	LaunchCommand string `json:"launch_command" binding:"required"`
}

// CreateSession implements create_session.
func (h *SessionsHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.store.Create(req.Name, req.ServerURL, req.LaunchCommand)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// UpdateSession implements update_session.
func (h *SessionsHandler) UpdateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.Update(c.Param("id"), req.Name, req.ServerURL, req.LaunchCommand); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSessions implements get_sessions.
func (h *SessionsHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.List())
}

// GetSession implements get_session.
func (h *SessionsHandler) GetSession(c *gin.Context) {
	snap, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// DeleteSession implements delete_session.
func (h *SessionsHandler) DeleteSession(c *gin.Context) {
	_ = h.store.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// StartSession implements start_session.
func (h *SessionsHandler) StartSession(c *gin.Context) {
	if err := h.manager.Start(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// StopSession implements stop_session (always reported as success).
func (h *SessionsHandler) StopSession(c *gin.Context) {
	_ = h.manager.Stop(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *SessionsHandler) dispatch(c *gin.Context, cmd session.UICommand) {
	if err := h.manager.Dispatch(c.Param("id"), cmd); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Go implements step (continue).
func (h *SessionsHandler) Go(c *gin.Context) { h.dispatch(c, session.UICommand{Kind: session.CmdGo}) }

// StepIn implements step_in.
func (h *SessionsHandler) StepIn(c *gin.Context) {
	h.dispatch(c, session.UICommand{Kind: session.CmdStepIn})
}

// StepOver implements step_over.
func (h *SessionsHandler) StepOver(c *gin.Context) {
	h.dispatch(c, session.UICommand{Kind: session.CmdStepOver})
}

// StepOut implements step_out.
func (h *SessionsHandler) StepOut(c *gin.Context) {
	h.dispatch(c, session.UICommand{Kind: session.CmdStepOut})
}

type disassemblyRequest struct {
	Address uint64 `json:"address"`
	Count   uint32 `json:"count"`
	Arch    string `json:"arch,omitempty"`
}

// RequestDisassembly implements request_disassembly.
func (h *SessionsHandler) RequestDisassembly(c *gin.Context) {
	var req disassemblyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, session.UICommand{
		Kind:    session.CmdDisassembly,
		Address: req.Address,
		Count:   req.Count,
		Arch:    debugproto.Arch(req.Arch),
	})
}

// RequestCallStack implements request_callstack.
func (h *SessionsHandler) RequestCallStack(c *gin.Context) {
	h.dispatch(c, session.UICommand{Kind: session.CmdGetCallStack})
}

type searchSymbolsRequest struct {
	Pattern string `json:"pattern" binding:"required"`
	Limit   int    `json:"limit,omitempty"`
}

// SearchSymbols implements search_symbols.
func (h *SessionsHandler) SearchSymbols(c *gin.Context) {
	var req searchSymbolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, session.UICommand{Kind: session.CmdSearchSymbols, Pattern: req.Pattern, Limit: req.Limit})
}

type readMemoryRequest struct {
	Address uint64 `json:"address"`
	Size    uint64 `json:"size"`
}

// ReadMemory implements read_memory.
func (h *SessionsHandler) ReadMemory(c *gin.Context) {
	var req readMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, session.UICommand{Kind: session.CmdReadMemory, Address: req.Address, Size: req.Size})
}

type writeMemoryRequest struct {
	Address uint64 `json:"address"`
	Data    []byte `json:"data"`
}

// WriteMemory implements write_memory.
func (h *SessionsHandler) WriteMemory(c *gin.Context) {
	var req writeMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, session.UICommand{Kind: session.CmdWriteMemory, Address: req.Address, Data: req.Data})
}

// GetMemoryRegions implements get_memory_regions.
func (h *SessionsHandler) GetMemoryRegions(c *gin.Context) {
	h.dispatch(c, session.UICommand{Kind: session.CmdGetMemoryRegions})
}

// GetSessionModules implements get_session_modules.
func (h *SessionsHandler) GetSessionModules(c *gin.Context) {
	modules, err := h.store.Modules(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, modules)
}

// GetSessionThreads implements get_session_threads.
func (h *SessionsHandler) GetSessionThreads(c *gin.Context) {
	threads, err := h.store.Threads(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

type windowStateRequest struct {
	Window string `json:"window" binding:"required"`
	IsOpen bool   `json:"is_open"`
}

// UpdateWindowState implements update_window_state.
func (h *SessionsHandler) UpdateWindowState(c *gin.Context) {
	var req windowStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.UpdateWindowState(c.Param("id"), req.Window, req.IsOpen); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetSettings implements get_settings.
func (h *SessionsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.policy.Get())
}

// UpdateSettings implements update_settings.
func (h *SessionsHandler) UpdateSettings(c *gin.Context) {
	var policy session.StopPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.policy.Set(policy); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.policy.Get())
}

// GetLogs implements get_logs.
func (h *SessionsHandler) GetLogs(c *gin.Context) {
	entries, err := h.logs.List(c.Query("session_id"), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// ClearLogs implements clear_logs.
func (h *SessionsHandler) ClearLogs(c *gin.Context) {
	if err := h.logs.Clear(c.Query("session_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
