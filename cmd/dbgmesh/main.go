package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/georgi-georgiev/dbgmesh/internal/api"
	"github.com/georgi-georgiev/dbgmesh/internal/controlloop"
	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
	"github.com/georgi-georgiev/dbgmesh/internal/emitter"
	"github.com/georgi-georgiev/dbgmesh/internal/logs"
	"github.com/georgi-georgiev/dbgmesh/internal/session"
	"github.com/georgi-georgiev/dbgmesh/internal/shared/config"
	"github.com/georgi-georgiev/dbgmesh/internal/shared/database"
	"github.com/georgi-georgiev/dbgmesh/internal/shared/logger"
	"github.com/georgi-georgiev/dbgmesh/internal/storage/repository"
	"go.uber.org/zap"
)

func main() {
	// Load configuration first: the logger's level/output/format all come
	// from it.
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger, cfg.Environment)
	defer log.Sync()

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Auto-migrate database schemas
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("Failed to auto-migrate database", zap.Error(err))
	}

	// Initialize the Event Emitter's WebSocket hub.
	hub := emitter.NewHub(log)
	go hub.Run()

	// Wire the session domain: the log stream, the stop-policy store, the
	// session state store (with the hub as its EventSink), and the
	// control-loop manager that dispatches UI commands and launches a
	// control loop per session.
	logRepo := repository.NewLogRepository(db)
	logStore := logs.NewStore(logRepo, log)
	policy := session.NewPolicyStore()
	store := session.NewStore(hub)
	manager := controlloop.NewManager(store, policy, hub, logStore, debugproto.TCPDialer{})

	// Initialize API server
	router := api.NewRouter(db, log, store, manager, policy, logStore, hub)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Starting dbgmesh controller",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
