package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/tendant/schema-content/internal/logger"
	"github.com/tendant/schema-content/pkg/schemacontent/api"
	"github.com/tendant/schema-content/pkg/schemacontent/config"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n\n%s", err, config.Usage())
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.ServerConfig, log *zap.Logger) error {
	ctx := context.Background()

	registry, err := cfg.BuildRegistry()
	if err != nil {
		return err
	}
	repo, closeRepo, err := cfg.BuildRepositoryWithRegistry(ctx, log, registry)
	if err != nil {
		return err
	}
	defer closeRepo()

	// Queries depend on the index set; refuse traffic until it exists.
	if err := repo.EnsureIndexes(ctx); err != nil {
		return err
	}

	router := api.NewRouter(repo, registry, log, api.RouterOptions{
		RequestTimeout: 60 * time.Second,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("database", cfg.DatabaseType))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}

	log.Info("server exited")
	return nil
}
