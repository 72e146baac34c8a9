package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/briefwire/ai-gateway/internal/auth"
	gwcache "github.com/briefwire/ai-gateway/internal/cache"
	"github.com/briefwire/ai-gateway/internal/config"
	"github.com/briefwire/ai-gateway/internal/enhance"
	"github.com/briefwire/ai-gateway/internal/logger"
	"github.com/briefwire/ai-gateway/internal/metrics"
	"github.com/briefwire/ai-gateway/internal/proxy"
	"github.com/briefwire/ai-gateway/internal/ratelimit"
	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/retry"
	"github.com/briefwire/ai-gateway/internal/telemetry"
	"github.com/briefwire/ai-gateway/internal/upstream"
)

// initInfra establishes optional external connections and trace export.
// Redis is only required when CACHE_MODE=redis.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Cache.Mode == "redis" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	stop, err := telemetry.Init("ai-gateway", a.version, a.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.stopTracing = stop

	return nil
}

// initAdapters builds the provider catalog and one adapter per configured
// backend. At least one backend must be usable — this is enforced by
// config validation before we reach here.
func (a *App) initAdapters(_ context.Context) error {
	a.catalog = registry.Default()

	adapters, err := buildAdapters(a.cfg, a.catalog)
	if err != nil {
		return err
	}
	if len(adapters) == 0 {
		return fmt.Errorf("no provider credentials configured")
	}
	a.adapters = adapters

	names := make([]string, 0, len(adapters))
	for n := range adapters {
		names = append(names, n)
	}
	a.log.Info("providers loaded", slog.Any("providers", names))

	return nil
}

// initServices creates the cache backend, the async dispatch logger, and the
// Prometheus metrics registry.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Cache.Mode {
	case "redis":
		// ExactCache wraps the already-connected Redis client.
		a.log.Info("cache backend: redis")

	case "memory":
		// MemoryCache — zero external dependencies, not shared across replicas.
		a.memCache = gwcache.NewMemoryCache(ctx)
		a.log.Info("cache backend: memory (in-process)")

	case "none":
		a.log.Info("cache backend: disabled")

	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	dl, err := logger.New(a.baseCtx, a.log)
	if err != nil {
		return fmt.Errorf("dispatch logger: %w", err)
	}
	a.dispatchLogger = dl

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	return nil
}

// initGateway wires together the orchestrator with all configured subsystems.
func (a *App) initGateway(_ context.Context) error {
	// ── Determine cache implementation ────────────────────────────────────────
	var cacheImpl gwcache.Cache
	var cacheReady func() bool

	switch a.cfg.Cache.Mode {
	case "redis":
		cacheImpl = gwcache.NewExactCacheFromClient(a.rdb)
		cacheReady = redisPinger(a.baseCtx, a.rdb)
	case "memory":
		cacheImpl = a.memCache
		cacheReady = func() bool { return true }
	case "none":
		// nil cache — gateway handles nil gracefully (no caching)
	}

	// ── Core services ─────────────────────────────────────────────────────────
	authSvc := auth.NewService(a.cfg.Auth.APIKeys, a.cfg.Auth.AllowedOrigins)

	retryOpts, err := retryOptions(a.cfg)
	if err != nil {
		return fmt.Errorf("retry config: %w", err)
	}
	retrySvc, err := retry.NewService(retryOpts, a.log)
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}

	enhancer := enhance.NewService(a.cfg.Enhance.DefaultTTL, a.cfg.Enhance.Namespace)

	// The upstream client is only needed when a network-backed provider is
	// configured; a mock-only deployment never dials out.
	var up *upstream.Client
	if a.cfg.HasRealProvider() {
		up, err = upstream.NewClient(
			a.cfg.Upstream.URL, a.cfg.Upstream.Token, a.log,
			upstream.WithTimeout(a.cfg.Upstream.Timeout),
		)
		if err != nil {
			return fmt.Errorf("upstream: %w", err)
		}
	}

	opts := proxy.Options{
		Auth:           authSvc,
		Registry:       a.catalog,
		Adapters:       a.adapters,
		Retry:          retrySvc,
		Enhancer:       enhancer,
		Upstream:       up,
		Cache:          cacheImpl,
		CacheReady:     cacheReady,
		DispatchLogger: a.dispatchLogger,
		Metrics:        a.prom,
		Logger:         a.log,
		Version:        a.version,
	}

	// ── Optional subsystems ──────────────────────────────────────────────────

	// Rate limiting — only when Redis is available.
	if a.rdb != nil && a.cfg.RateLimit.RPMLimit > 0 {
		opts.RPMLimiter = ratelimit.NewRPMLimiter(a.rdb, a.cfg.RateLimit.RPMLimit)
		a.log.Info("rate limiting enabled", slog.Int("rpm_limit", a.cfg.RateLimit.RPMLimit))
	}

	// Cache exclusions.
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := gwcache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		opts.CacheExclusions = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	gw, err := proxy.New(opts)
	if err != nil {
		return err
	}

	// ── Management routes ────────────────────────────────────────────────────
	a.mgmt = &proxy.ManagementRoutes{
		Metrics: a.prom.Handler(),
	}

	a.gw = gw

	return nil
}

// retryOptions resolves the configured retry knobs, alias spellings included,
// into canonical options. Set-but-invalid values (negative attempts, a bad
// factor) are passed through so Normalize rejects them and startup aborts
// instead of silently running on defaults.
func retryOptions(cfg *config.Config) (retry.Options, error) {
	rc := retry.Config{}
	if cfg.Retry.MaxAttempts != 0 {
		rc.MaxAttempts = &cfg.Retry.MaxAttempts
	}
	if cfg.Retry.MaxRetries != 0 {
		rc.MaxRetries = &cfg.Retry.MaxRetries
	}
	if cfg.Retry.BaseDelayMs != 0 {
		rc.BaseDelayMs = &cfg.Retry.BaseDelayMs
	}
	if cfg.Retry.MaxDelayMs != 0 {
		rc.MaxDelayMs = &cfg.Retry.MaxDelayMs
	}
	if cfg.Retry.BackoffFactor != 0 {
		rc.BackoffFactor = &cfg.Retry.BackoffFactor
	}
	if cfg.Retry.ExponentialBase != 0 {
		rc.ExponentialBase = &cfg.Retry.ExponentialBase
	}
	rc.Jitter = &cfg.Retry.Jitter

	opts, err := rc.Normalize()
	if err != nil {
		return retry.Options{}, err
	}
	if cfg.Retry.MaxElapsed != 0 {
		opts.MaxElapsed = cfg.Retry.MaxElapsed
	}
	if err := opts.Validate(); err != nil {
		return retry.Options{}, err
	}
	return opts, nil
}
