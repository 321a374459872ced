/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the retirement engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration (viper)
  2. Build the zap logger
  3. Open the store (SQLite, or in-memory for ":memory:")
  4. Import the optional rules and tax table files
  5. Load the reference snapshot and start the refresher
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: ./config.yaml if present)

ENVIRONMENT:
  Every key can be set with a RETIRE_ prefix, e.g.
  RETIRE_APP_PORT=9090, RETIRE_DATABASE_PATH=:memory:, RETIRE_LOG_LEVEL=debug

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresher
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store
  5. Exit

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/retirement-engine/api"
	"github.com/warp/retirement-engine/config"
	"github.com/warp/retirement-engine/logger"
	"github.com/warp/retirement-engine/store"
	"github.com/warp/retirement-engine/store/memory"
	"github.com/warp/retirement-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func openStore(path string) (store.Store, error) {
	if path == ":memory:" {
		return memory.New(), nil
	}
	return sqlite.New(path)
}

func run(cfg *config.Config, log *zap.Logger) error {
	st, err := openStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	handler := api.NewHandler(st, cfg.Engine, log)

	if err := handler.ImportFiles(ctx, cfg.Engine.RulesFile, cfg.Engine.BracketsFile); err != nil {
		return fmt.Errorf("failed to import reference files: %w", err)
	}
	if err := handler.LoadReference(ctx); err != nil {
		log.Warn("using built-in reference data", zap.Error(err))
	}

	refresher := api.NewReferenceRefresher(handler, cfg.Refresh.Interval)
	refresher.Enabled = cfg.Refresh.Enabled
	refresher.Start()
	defer refresher.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.CORSAllowOrigins,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.App.Env),
			zap.String("database", cfg.Database.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
