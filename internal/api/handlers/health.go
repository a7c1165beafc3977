package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/georgi-georgiev/dbgmesh/internal/controlloop"
	"github.com/georgi-georgiev/dbgmesh/internal/session"
	"gorm.io/gorm"
)

// HealthHandler reports whether the log-persistence database is reachable
// and summarizes the live session domain: how many sessions the store
// holds and how many of them currently have a control loop running.
type HealthHandler struct {
	db      *gorm.DB
	store   *session.Store
	manager *controlloop.Manager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, store *session.Store, manager *controlloop.Manager) *HealthHandler {
	return &HealthHandler{db: db, store: store, manager: manager}
}

// Check handles the health check endpoint
func (h *HealthHandler) Check(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "error",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "error",
			"database": "unreachable",
			"error":    err.Error(),
		})
		return
	}

	snapshots := h.store.List()
	running := 0
	for _, snap := range snapshots {
		if snap.Status == session.StatusRunning || snap.Status == session.StatusPaused {
			running++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"database":        "connected",
		"service":         "dbgmesh-api",
		"version":         "0.1.0",
		"sessions_total":  len(snapshots),
		"sessions_active": running,
		"manager_ready":   h.manager != nil,
	})
}
