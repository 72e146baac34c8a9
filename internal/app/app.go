// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra    — external connections (Redis when needed) and tracing
//  2. initAdapters — provider catalog and per-provider adapters
//  3. initServices — cache backend, dispatch logger, metrics registry
//  4. initGateway  — orchestrator + management routes
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/briefwire/ai-gateway/internal/adapters"
	anthropicadapter "github.com/briefwire/ai-gateway/internal/adapters/anthropic"
	googleadapter "github.com/briefwire/ai-gateway/internal/adapters/google"
	mockadapter "github.com/briefwire/ai-gateway/internal/adapters/mock"
	openaiadapter "github.com/briefwire/ai-gateway/internal/adapters/openai"
	workersadapter "github.com/briefwire/ai-gateway/internal/adapters/workers"
	gwcache "github.com/briefwire/ai-gateway/internal/cache"
	"github.com/briefwire/ai-gateway/internal/config"
	"github.com/briefwire/ai-gateway/internal/logger"
	"github.com/briefwire/ai-gateway/internal/metrics"
	"github.com/briefwire/ai-gateway/internal/proxy"
	"github.com/briefwire/ai-gateway/internal/registry"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	rdb *redis.Client

	dispatchLogger *logger.Logger
	memCache       *gwcache.MemoryCache
	stopTracing    func()

	prom *metrics.Registry

	catalog  *registry.Registry
	adapters map[string]adapters.Adapter
	mgmt     *proxy.ManagementRoutes
	gw       *proxy.Gateway
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"adapters", a.initAdapters},
		{"services", a.initServices},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or an error
// occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("cache_mode", a.cfg.Cache.Mode),
		slog.Int("providers", len(a.adapters)),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.gw.StartWithRoutes(addr, a.mgmt)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times and from multiple goroutines.
func (a *App) Close() {
	if a.dispatchLogger != nil {
		if err := a.dispatchLogger.Close(); err != nil {
			a.log.Error("logger close error", slog.String("error", err.Error()))
		}
		a.dispatchLogger = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
	if a.stopTracing != nil {
		a.stopTracing()
		a.stopTracing = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
// Returns an error — callers decide whether to fatal or degrade.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redisPinger returns a zero-argument probe function suitable for the
// readiness endpoint. Reuses the existing client — no new connections.
func redisPinger(ctx context.Context, rdb *redis.Client) func() bool {
	return func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err() == nil
	}
}

// buildAdapters creates an adapter per provider with usable credentials.
// Providers without credentials are simply not registered.
func buildAdapters(cfg *config.Config, catalog *registry.Registry) (map[string]adapters.Adapter, error) {
	out := make(map[string]adapters.Adapter)

	if cfg.Providers.OpenAIKey != "" {
		if p, ok := catalog.Provider("openai"); ok {
			a, err := openaiadapter.New(p, cfg.Providers.OpenAIKey)
			if err != nil {
				return nil, err
			}
			out["openai"] = a
		}
	}
	if cfg.Providers.AnthropicKey != "" {
		if p, ok := catalog.Provider("anthropic"); ok {
			a, err := anthropicadapter.New(p, cfg.Providers.AnthropicKey)
			if err != nil {
				return nil, err
			}
			out["anthropic"] = a
		}
	}
	if cfg.Providers.GoogleKey != "" {
		if p, ok := catalog.Provider("google"); ok {
			a, err := googleadapter.New(p, cfg.Providers.GoogleKey)
			if err != nil {
				return nil, err
			}
			out["google"] = a
		}
	}
	if cfg.Providers.WorkersToken != "" {
		if p, ok := catalog.Provider("workers"); ok {
			a, err := workersadapter.New(p, cfg.Providers.WorkersToken, cfg.Providers.WorkersAccountID)
			if err != nil {
				return nil, err
			}
			out["workers"] = a
		}
	}
	if cfg.Providers.MockEnabled {
		if p, ok := catalog.Provider("mock"); ok {
			a, err := mockadapter.New(p)
			if err != nil {
				return nil, err
			}
			out["mock"] = a
		}
	}

	return out, nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			// Find the scheme end ("://") and keep only scheme + "***" + @host.
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
