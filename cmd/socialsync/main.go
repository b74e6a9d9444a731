// Package main contains the entrypoint for the SocialSync bridge server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/socialsync/socialsync/internal/agent"
	"github.com/socialsync/socialsync/internal/config"
	"github.com/socialsync/socialsync/internal/database"
	"github.com/socialsync/socialsync/internal/logger"
	"github.com/socialsync/socialsync/internal/orchestrator"
	"github.com/socialsync/socialsync/internal/platform"
	"github.com/socialsync/socialsync/internal/scheduler"
	"github.com/socialsync/socialsync/internal/server"
	"github.com/socialsync/socialsync/internal/translate"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components (config, logger, db, agent client,
// platform adapters, orchestrator, scheduler, HTTP server), blocks until
// shutdown, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	invoker, err := agent.New(ctx, cfg.Agent, log)
	if err != nil {
		log.Error("Failed to initialize agent backend", "provider", cfg.Agent.Provider, "error", err)
		return 1
	}
	log.Info("Agent backend initialized", "provider", cfg.Agent.Provider)

	adapters := []platform.Adapter{
		platform.NewFacebookAdapter(cfg.Platforms.Facebook, platform.DefaultGraphBaseURL, log),
		platform.NewInstagramAdapter(cfg.Platforms.Instagram, platform.DefaultGraphBaseURL, log),
		platform.NewWhatsAppAdapter(cfg.Platforms.WhatsApp, platform.DefaultGraphBaseURL, log),
	}

	var language *translate.Workflow
	if cfg.Translate.Enabled {
		translator, err := translate.NewAWSTranslator(ctx, cfg.Translate.Region,
			cfg.Agent.AWSAccessKey, cfg.Agent.AWSSecretKey, log)
		if err != nil {
			log.Error("Failed to initialize translator", "error", err)
			return 1
		}
		language = translate.NewWorkflow(translator, cfg.Translate.Languages, log)
		log.Info("Language workflow enabled", "languages", len(language.Options()))
	}

	orch := orchestrator.New(store, invoker, adapters, language, cfg, log)

	sched, err := scheduler.NewScheduler(log, &cfg.Scheduler,
		scheduler.BuildTasks(store, cfg.Session.IdleTimeout, log))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	if err := sched.Start(); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		return 1
	}
	defer func() {
		if stopErr := sched.Stop(); stopErr != nil {
			log.Error("Failed to stop scheduler", "error", stopErr)
		}
	}()

	handler := server.NewHandler(orch, store, cfg.History, log)
	srv := server.NewServer(cfg.Server, server.NewRouter(handler, log))

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
		return 1
	}

	log.Info("Server stopped gracefully")
	return 0
}
