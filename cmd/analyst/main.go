// Package main is the entry point for the analyst service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/mondweep/Auto-Analyst/internal/app"
	"github.com/mondweep/Auto-Analyst/internal/config"
	"github.com/mondweep/Auto-Analyst/internal/dataset"
	"github.com/mondweep/Auto-Analyst/internal/retrieval"
	"github.com/mondweep/Auto-Analyst/internal/session"
	"github.com/mondweep/Auto-Analyst/internal/usage"
	usagepg "github.com/mondweep/Auto-Analyst/internal/usage/postgres"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

func init() {
	_ = godotenv.Load()
}

func main() {
	configPath := flag.String("config", "", "config file path (default: ./analyst.toml)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("analyst version %s (commit: %s)\n", version, commit)
		return
	}

	logger := logging.New().WithComponent("main")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("service failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Default dataset, loaded once and shared by all new sessions.
	var defaultDataset *dataset.Descriptor
	if cfg.Dataset.Path != "" {
		ds, err := dataset.Load(cfg.Dataset.Path, cfg.Dataset.Name, "")
		if err != nil {
			return fmt.Errorf("loading default dataset: %w", err)
		}
		defaultDataset = ds
		logger.Info("default dataset loaded", map[string]interface{}{
			"name": ds.Name,
			"rows": ds.Rows,
		})
	}

	// Usage persistence is optional: without a database URL, records are
	// counted but not stored.
	var recorder usage.Recorder = usage.NopRecorder{}
	if dbURL := cfg.DatabaseURL(); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		store := usagepg.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("preparing usage schema: %w", err)
		}
		recorder = store
		logger.Info("usage persistence enabled", nil)
	}

	meter := usage.NewMeter(recorder, cfg.Usage.QueueSize)

	sessions := session.NewStore(session.Defaults{
		Model:   app.ModelConfigFrom(cfg.LLM),
		Dataset: defaultDataset,
		Styling: retrieval.StylingRules,
	}, cfg.SessionTTL(), time.Duration(cfg.Sessions.SweepMinutes)*time.Minute)
	defer sessions.Close()

	analyst := app.New(&app.AppContext{
		Config:   cfg,
		Sessions: sessions,
		Meter:    meter,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newServer(analyst, cfg).routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", map[string]interface{}{"addr": cfg.Server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	if err := meter.Drain(shutdownCtx); err != nil {
		logger.Warn("usage queue not fully drained", map[string]interface{}{"error": err.Error()})
	}
	return nil
}
