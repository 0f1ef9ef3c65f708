// Command gateway runs the platform API gateway: tenant resolution, bearer
// token verification, per-client rate limiting and request forwarding to the
// registered backend services.
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

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/taskhive/platform/internal/config"
	"github.com/taskhive/platform/internal/gateway"
	"github.com/taskhive/platform/internal/logger"
	"github.com/taskhive/platform/internal/proxy"
	"github.com/taskhive/platform/internal/ratelimit"
	"github.com/taskhive/platform/internal/registry"
	"github.com/taskhive/platform/internal/resolver"
	"github.com/taskhive/platform/internal/token"
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
	cfg.Logging.Service = "gateway"

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"rate_backend", cfg.Rate.Backend,
		"upstreams", len(cfg.Gateway.Upstreams),
	)

	ctx := context.Background()

	validator, err := token.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Algorithm)
	if err != nil {
		return fmt.Errorf("token validator: %w", err)
	}

	reg := registry.New()
	for name, addr := range cfg.Gateway.Upstreams {
		reg.Register(name, addr)
	}
	log.Info("service registry seeded", "services", reg.List())

	limiter, closeLimiter := buildLimiter(ctx, cfg, log)
	defer closeLimiter()

	cache, err := resolver.NewTenantCache(cfg.Gateway.CacheMaxBytes)
	if err != nil {
		return fmt.Errorf("tenant cache: %w", err)
	}
	res := resolver.New(cache, cfg.Gateway.ResolverURL, cfg.Gateway.ResolveTimeout, log)

	fwd := proxy.New(reg, cfg.Gateway.RequestTimeout, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout, log)

	r := gateway.NewRouter(gateway.Deps{
		Registry:   reg,
		Forwarder:  fwd,
		Resolver:   res,
		Validator:  validator,
		Limiter:    limiter,
		RateLimit:  cfg.Rate.Limit,
		RateWindow: cfg.Rate.Window,
		CORSOrigin: cfg.Server.CORSOrigin,
		Logger:     log,
	})

	return serve(r, cfg.Server.Port, log)
}

// buildLimiter returns the configured rate limiter backend. When the shared
// backend cannot be reached at startup the gateway degrades to local
// counting instead of refusing to start.
func buildLimiter(ctx context.Context, cfg *config.Config, log *slog.Logger) (ratelimit.Limiter, func()) {
	if cfg.Rate.Backend != "shared" {
		return ratelimit.NewLocalWindow(cfg.Rate.Window), func() {}
	}

	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Warn("shared rate limit backend unavailable, using local counting",
			"url", cfg.NATS.URL, "error", err)
		return ratelimit.NewLocalWindow(cfg.Rate.Window), func() {}
	}

	js, err := jetstream.New(nc)
	if err == nil {
		var shared *ratelimit.SharedWindow
		shared, err = ratelimit.NewSharedWindow(ctx, js, cfg.Rate.Bucket, cfg.Rate.Window)
		if err == nil {
			log.Info("shared rate limit backend connected", "bucket", cfg.Rate.Bucket)
			return shared, nc.Close
		}
	}

	nc.Close()
	log.Warn("shared rate limit backend unavailable, using local counting", "error", err)
	return ratelimit.NewLocalWindow(cfg.Rate.Window), func() {}
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
