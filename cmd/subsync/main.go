package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neolearn/subsync/internal/adapter/directory"
	"github.com/neolearn/subsync/internal/adapter/fsm"
	"github.com/neolearn/subsync/internal/adapter/otel"
	riveradapter "github.com/neolearn/subsync/internal/adapter/river"
	"github.com/neolearn/subsync/internal/adapter/smtp"
	"github.com/neolearn/subsync/internal/adapter/sqlite"
	stripeadapter "github.com/neolearn/subsync/internal/adapter/stripe"
	"github.com/neolearn/subsync/internal/app"
	"github.com/neolearn/subsync/internal/config"

	handler "github.com/neolearn/subsync/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("subsync: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Telemetry ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otel.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrations: %w", err)
	}
	defer store.Close()

	repo := otel.NewTracingRepository(sqlite.NewTenantRepository(store))
	queue := otel.NewTracingQueue(sqlite.NewNotificationQueue(store))
	audit := sqlite.NewAuditLog(store)
	deferred := sqlite.NewDeferredEventStore(store)
	profiles := sqlite.NewProfileRepository(store)

	dir := directory.New(cfg.DirectoryBaseURL, cfg.DirectoryToken)
	messenger := smtp.New(smtp.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Sender:   cfg.SMTPSender,
	})
	verifier := stripeadapter.NewVerifier(cfg.WebhookSecret, cfg.AllowUnverifiedEvents, logger)

	// --- Application ---
	provisioner := app.NewProvisioner(repo, logger)
	linker := app.NewLinker(repo, dir, profiles, logger)
	synchronizer := app.NewSynchronizer(repo, queue, deferred, logger)
	eventRouter := app.NewRouter(provisioner, linker, synchronizer, logger)
	dispatcher := app.NewDispatcher(queue, repo, audit, messenger, fsm.New(), cfg.DispatchBatchSize, logger)
	admin := app.NewAdminService(repo, queue, deferred)

	// --- Background jobs ---
	jobs, err := riveradapter.Setup(ctx, db, dispatcher, synchronizer,
		cfg.DispatchInterval, cfg.ReconcileInterval, logger)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware("subsync", otelchi.WithChiRoutes(router)))

	webhook := handler.NewWebhookHandler(verifier, eventRouter, logger)
	router.Post("/webhooks/billing", webhook.ServeHTTP)

	api := humachi.New(router, huma.DefaultConfig("subsync", "0.1.0"))
	handler.Register(api, admin)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("subsync listening", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	case <-done:
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Error("job queue shutdown", "error", err)
	}

	logger.Info("stopped")
	return nil
}
