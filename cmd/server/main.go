package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/classward/sessiond/internal/api"
	"github.com/classward/sessiond/internal/clock"
	"github.com/classward/sessiond/internal/config"
	"github.com/classward/sessiond/internal/credential"
	"github.com/classward/sessiond/internal/directory"
	"github.com/classward/sessiond/internal/roles"
	"github.com/classward/sessiond/internal/session"
	"github.com/classward/sessiond/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	policy, err := config.LoadPolicy(cfg.AccessPolicyPath)
	if err != nil {
		slog.Error("failed to load access policy", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repo := directory.NewRepository(pool)
	resolver := roles.NewResolver(repo, policy.StaffDomains, probeOrder(cfg.RoleProbeOrder))

	var source credential.Source
	if cfg.RenewalURL != "" {
		source = credential.NewHTTPSource(cfg.RenewalURL)
	} else {
		slog.Warn("no renewal endpoint configured; credentials will expire naturally")
		source = noRenewal{}
	}

	orchestrator := session.New(session.Config{
		InactivityWindow: cfg.InactivityWindow,
		RenewalLead:      cfg.RenewalLead,
		RenewalThreshold: cfg.RenewalThreshold,
		FlushInterval:    cfg.ActivityFlushInterval,
		BufferCap:        cfg.ActivityBufferCap,
		Blocklist:        policy.Blocklist,
	}, session.Deps{
		Clock:    clock.New(),
		Store:    store.NewRedisStore(redisClient),
		Repo:     repo,
		Parser:   credential.NewParser(cfg.JWTSecret),
		Source:   source,
		Resolver: resolver,
		Signal:   roles.NewWatcher(redisClient),
	})
	defer orchestrator.Close()

	router := api.NewRouter(api.RouterDeps{
		Orchestrator:     orchestrator,
		DBPinger:         pool,
		CachePinger:      redisPinger{client: redisClient},
		Version:          cfg.Version,
		ServiceTokenHash: cfg.ServiceTokenHash,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting sessiond", "port", cfg.Port, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func probeOrder(names []string) []roles.Role {
	var order []roles.Role
	for _, name := range names {
		role, ok := roles.Parse(name)
		if !ok {
			slog.Warn("ignoring unknown role in probe order", "role", name)
			continue
		}
		order = append(order, role)
	}
	return order
}

// redisPinger adapts the Redis client to the health handler's Pinger.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// noRenewal is used when no renewal endpoint is configured.
type noRenewal struct{}

func (noRenewal) Renew(context.Context) (string, error) {
	return "", errors.New("no renewal endpoint configured")
}
