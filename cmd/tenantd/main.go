// Command tenantd runs the tenant directory: the control-plane registry of
// tenants and the provisioner that creates each tenant's database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhive/platform/internal/config"
	"github.com/taskhive/platform/internal/directory"
	"github.com/taskhive/platform/internal/events"
	"github.com/taskhive/platform/internal/logger"
	"github.com/taskhive/platform/internal/provision"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.Logging.Service = "tenantd"

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	log.Info("config loaded", "port", cfg.Server.Port)

	ctx := context.Background()

	pool, err := directory.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := directory.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	admin, err := pgxpool.New(ctx, cfg.Provision.AdminDSN)
	if err != nil {
		return fmt.Errorf("admin pool: %w", err)
	}
	defer admin.Close()

	// The directory stays up without an event bus; events are best effort.
	var pub directory.EventPublisher
	publisher, err := events.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		log.Warn("event bus unavailable, lifecycle events disabled", "error", err)
	} else {
		defer func() { _ = publisher.Close() }()
		pub = publisher
	}

	store := directory.NewStore(pool)
	prov := provision.New(admin, cfg.Provision, log)
	svc := directory.NewService(store, prov, pub, log)
	handler := directory.NewHandler(svc, log)

	return serve(handler.Routes(), cfg.Server.Port, log)
}

func serve(handler http.Handler, port string, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
