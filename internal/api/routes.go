package api

import (
	"github.com/gin-gonic/gin"
	"github.com/georgi-georgiev/dbgmesh/internal/api/handlers"
	"github.com/georgi-georgiev/dbgmesh/internal/api/middleware"
	"github.com/georgi-georgiev/dbgmesh/internal/controlloop"
	"github.com/georgi-georgiev/dbgmesh/internal/emitter"
	"github.com/georgi-georgiev/dbgmesh/internal/logs"
	"github.com/georgi-georgiev/dbgmesh/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewRouter wires the HTTP command surface of spec §6.1 plus the health
// check and WebSocket event stream. This layer is explicitly peripheral
// (spec §1 "any RPC/IPC binding works"); it exists only so the core is
// runnable end-to-end over a concrete transport.
func NewRouter(db *gorm.DB, logger *zap.Logger, store *session.Store, manager *controlloop.Manager, policy *session.PolicyStore, logStore *logs.Store, hub *emitter.Hub) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())

	health := handlers.NewHealthHandler(db, store, manager)
	r.GET("/health", health.Check)

	wsHandler := emitter.NewHandler(hub, logger)
	r.GET("/ws", wsHandler.HandleConnection)

	sh := handlers.NewSessionsHandler(store, manager, policy, logStore)

	v1 := r.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", sh.CreateSession)
			sessions.GET("", sh.ListSessions)
			sessions.GET("/:id", sh.GetSession)
			sessions.PUT("/:id", sh.UpdateSession)
			sessions.DELETE("/:id", sh.DeleteSession)

			sessions.POST("/:id/start", sh.StartSession)
			sessions.POST("/:id/stop", sh.StopSession)

			sessions.POST("/:id/go", sh.Go)
			sessions.POST("/:id/step-in", sh.StepIn)
			sessions.POST("/:id/step-over", sh.StepOver)
			sessions.POST("/:id/step-out", sh.StepOut)

			sessions.POST("/:id/disassembly", sh.RequestDisassembly)
			sessions.POST("/:id/callstack", sh.RequestCallStack)
			sessions.POST("/:id/symbols", sh.SearchSymbols)
			sessions.POST("/:id/memory/read", sh.ReadMemory)
			sessions.POST("/:id/memory/write", sh.WriteMemory)
			sessions.GET("/:id/memory/regions", sh.GetMemoryRegions)

			sessions.GET("/:id/modules", sh.GetSessionModules)
			sessions.GET("/:id/threads", sh.GetSessionThreads)
			sessions.PUT("/:id/window-state", sh.UpdateWindowState)
		}

		v1.GET("/settings", sh.GetSettings)
		v1.PUT("/settings", sh.UpdateSettings)

		v1.GET("/logs", sh.GetLogs)
		v1.DELETE("/logs", sh.ClearLogs)
	}

	return r
}
