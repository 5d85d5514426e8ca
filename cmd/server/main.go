/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the back-office credit ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment config, parse command-line flags
  2. Build the zap logger
  3. Initialize SQLite store
  4. Wire event bus, orchestrator, metrics, and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT env; default 8080)
  -db      SQLite database path (overrides DB_PATH env)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/backoffice.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  PORT, DB_PATH, LOG_LEVEL, ALLOWED_ORIGINS, READ_TIMEOUT,
  WRITE_TIMEOUT, SHUTDOWN_TIMEOUT, EVENT_BUFFER_SIZE. Flags win over
  environment values when both are set.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rotaviagens/backoffice/api"
	"github.com/rotaviagens/backoffice/booking"
	"github.com/rotaviagens/backoffice/config"
	"github.com/rotaviagens/backoffice/ledger"
	"github.com/rotaviagens/backoffice/observability"
	"github.com/rotaviagens/backoffice/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags override the environment
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire dependencies
	events := ledger.NewEventBus(cfg.EventBufferSize)
	metrics := observability.NewMetrics()
	orch := booking.New(store, events, logger)
	handler := api.NewHandler(orch, events, metrics)

	router := api.NewRouter(handler, logger, strings.Split(cfg.AllowedOrigins, ","))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
