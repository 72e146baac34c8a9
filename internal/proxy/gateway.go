// Package proxy is the dispatch orchestrator.
//
// The Gateway receives a capability-shaped unified request, authenticates it,
// asks every eligible adapter to build a provider sub-request, attaches the
// enhancement headers, submits the batch to the upstream multi-provider
// gateway under retry supervision, and maps the winning sub-response back
// into the unified shape with tracing metadata attached.
//
// Key design constraints:
//   - Logger, cache, metrics, and rate limiter are optional and nil-safe.
//   - All I/O uses context.Context so timeouts propagate correctly.
//   - A sub-request that fails to build is skipped with a warning; the rest
//     of the batch still proceeds.
//   - Authentication failures short-circuit before any provider work.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/briefwire/ai-gateway/internal/adapters"
	"github.com/briefwire/ai-gateway/internal/auth"
	"github.com/briefwire/ai-gateway/internal/cache"
	"github.com/briefwire/ai-gateway/internal/enhance"
	"github.com/briefwire/ai-gateway/internal/logger"
	"github.com/briefwire/ai-gateway/internal/metadata"
	"github.com/briefwire/ai-gateway/internal/metrics"
	"github.com/briefwire/ai-gateway/internal/ratelimit"
	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/retry"
	"github.com/briefwire/ai-gateway/internal/telemetry"
	"github.com/briefwire/ai-gateway/internal/unified"
	"github.com/briefwire/ai-gateway/internal/upstream"
	"github.com/briefwire/ai-gateway/pkg/apierr"
)

// Options holds the Gateway's dependencies. Auth, Registry, Adapters, and
// Retry are required; everything else is optional and nil-safe.
type Options struct {
	Auth     *auth.Service
	Registry *registry.Registry

	// Adapters maps provider name to its configured adapter. Providers in
	// the registry without an adapter here are skipped during candidate
	// selection.
	Adapters map[string]adapters.Adapter

	Retry    *retry.Service
	Enhancer *enhance.Service

	// Upstream may be nil when every adapter fabricates responses locally.
	Upstream *upstream.Client

	Cache           cache.Cache
	CacheExclusions *cache.ExclusionList
	CacheReady      func() bool

	DispatchLogger *logger.Logger
	Metrics        *metrics.Registry
	RPMLimiter     *ratelimit.RPMLimiter

	Logger  *slog.Logger
	Version string
}

// Gateway is the dispatch orchestrator. All dependencies are injected via
// the constructor so they can be replaced with doubles in unit tests.
type Gateway struct {
	auth     *auth.Service
	registry *registry.Registry
	adapters map[string]adapters.Adapter
	retrier  *retry.Service
	enhancer *enhance.Service
	upstream *upstream.Client

	cache           cache.Cache
	cacheExclusions *cache.ExclusionList
	cacheReady      func() bool

	dispatchLog *logger.Logger
	metrics     *metrics.Registry
	rpmLimiter  *ratelimit.RPMLimiter

	log     *slog.Logger
	tracer  trace.Tracer
	version string
}

// New builds a Gateway from its dependencies.
func New(opts Options) (*Gateway, error) {
	if opts.Auth == nil {
		return nil, &unified.ConfigurationError{Component: "proxy", Reason: "auth service is required"}
	}
	if opts.Registry == nil || opts.Registry.Len() == 0 {
		return nil, &unified.ConfigurationError{Component: "proxy", Reason: "provider registry is empty"}
	}
	if len(opts.Adapters) == 0 {
		return nil, &unified.ConfigurationError{Component: "proxy", Reason: "no adapters configured"}
	}
	if opts.Retry == nil {
		return nil, &unified.ConfigurationError{Component: "proxy", Reason: "retry service is required"}
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	enhancer := opts.Enhancer
	if enhancer == nil {
		enhancer = enhance.NewService(0, "")
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	return &Gateway{
		auth:            opts.Auth,
		registry:        opts.Registry,
		adapters:        opts.Adapters,
		retrier:         opts.Retry,
		enhancer:        enhancer,
		upstream:        opts.Upstream,
		cache:           opts.Cache,
		cacheExclusions: opts.CacheExclusions,
		cacheReady:      opts.CacheReady,
		dispatchLog:     opts.DispatchLogger,
		metrics:         opts.Metrics,
		rpmLimiter:      opts.RPMLimiter,
		log:             log,
		tracer:          otel.Tracer(telemetry.TracerName),
		version:         version,
	}, nil
}

// candidate pairs an eligible adapter with its resolved model and the built,
// enhanced sub-request.
type candidate struct {
	adapter adapters.Adapter
	model   *registry.ModelConfig
	sub     *unified.GatewayRequest
	fab     adapters.Fabricator
}

// dispatch handles POST /v1/dispatch.
func (g *Gateway) dispatch(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := "dispatch"
	reqBytes := len(ctx.PostBody())
	servedProvider := "unknown"
	capabilityLabel := "unknown"

	if g.metrics != nil {
		g.metrics.IncInFlight()
	}
	defer func() {
		if g.metrics == nil {
			return
		}
		g.metrics.DecInFlight()
		g.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start),
			reqBytes, len(ctx.Response.Body()))
	}()

	reqID, _ := ctx.UserValue(requestIDKey).(string)

	// 1. Authenticate before any provider work.
	creds, _, err := g.auth.Authenticate(ctx)
	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordAuthRejection("credentials")
		}
		g.log.WarnContext(ctx, "auth_rejected",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		apierr.WriteError(ctx, reqID, err)
		return
	}

	// 2. Parse and normalize the unified request.
	var req unified.Request
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteError(ctx, reqID, &unified.ValidationError{
			Field: "body", Reason: "invalid JSON: " + err.Error(),
		})
		return
	}
	if err := req.Normalize(); err != nil {
		apierr.WriteError(ctx, reqID, err)
		return
	}
	capabilityLabel = string(req.Capability)
	req.Auth = creds
	md := metadata.FromRequest(ctx, reqID)

	// 3. Per-key rate limit.
	if g.rpmLimiter != nil {
		allowed, rlErr := g.rpmLimiter.AllowKey(ctx, creds.APIKey)
		if rlErr == nil && !allowed {
			if g.metrics != nil {
				g.metrics.RecordRateLimit("blocked")
			}
			g.log.WarnContext(ctx, "rate_limit_exceeded", slog.String("request_id", reqID))
			apierr.WriteRateLimit(ctx, reqID)
			return
		}
		if g.metrics != nil {
			if rlErr != nil {
				g.metrics.RecordRateLimit("error")
			} else {
				g.metrics.RecordRateLimit("allowed")
			}
		}
	}

	// 4. Open the dispatch span and record trace ids in the metadata.
	spanCtx, span := g.tracer.Start(ctx, "dispatch", trace.WithAttributes(
		attribute.String("gateway.capability", string(req.Capability)),
		attribute.String("gateway.request_id", reqID),
	))
	defer span.End()
	if sc := span.SpanContext(); sc.HasTraceID() {
		md = md.WithTrace(sc.TraceID().String(), sc.SpanID().String())
	}
	req.Metadata = md

	// 5. Build the sub-request batch.
	cands, err := g.buildCandidates(&req, reqID)
	if err != nil {
		g.fail(ctx, reqID, md, err, 0)
		return
	}
	primary := cands[0]
	servedProvider = primary.sub.Provider
	span.SetAttributes(
		attribute.String("gateway.provider", primary.sub.Provider),
		attribute.String("gateway.model", primary.model.Name),
		attribute.Int("gateway.sub_requests", len(cands)),
	)

	g.log.InfoContext(ctx, "dispatch",
		slog.String("request_id", reqID),
		slog.String("capability", string(req.Capability)),
		slog.String("provider", primary.sub.Provider),
		slog.String("model", primary.model.Name),
		slog.Int("sub_requests", len(cands)),
		slog.Bool("fallback", req.Fallback),
	)

	// 6. Local cache lookup keyed by the same content hash the upstream uses.
	cacheKey, cacheTTL := g.cachePlan(&req, primary.model)
	if cacheKey != "" {
		if body, ok := g.cache.Get(ctx, cacheKey); ok {
			if g.metrics != nil {
				g.metrics.CacheGetHit()
				g.metrics.ObserveDispatch(servedProvider, capabilityLabel, "cached", time.Since(start))
			}
			g.serveCached(ctx, reqID, &req, md, body, start)
			return
		}
		if g.metrics != nil {
			g.metrics.CacheGetMiss()
		}
	} else if g.metrics != nil {
		g.metrics.CacheGetBypass()
	}

	// 7. Collect sub-responses: local fabrication plus the upstream batch
	// under retry supervision.
	results, attempts, err := g.collect(spanCtx, reqID, &req, cands)
	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordRetryAttempts("exhausted", len(attempts))
			g.metrics.ObserveDispatch(servedProvider, capabilityLabel, "error", time.Since(start))
		}
		g.logDispatch(reqID, servedProvider, primary.model.Name, capabilityLabel,
			nil, time.Since(start), 500, false, false, len(attempts)+1, 0)
		g.fail(ctx, reqID, md, err, len(attempts))
		return
	}
	if g.metrics != nil && len(attempts) > 0 {
		g.metrics.RecordRetryAttempts("recovered", len(attempts))
	}

	// 8. Pick the winner and map it through its adapter.
	winner, ok := pickWinner(primary.sub.Provider, results)
	if !ok {
		first := results[0]
		err := &unified.ProviderError{
			Provider: first.Provider,
			Status:   first.Status,
			Message:  clip(string(first.Body), 256),
		}
		if g.metrics != nil {
			g.metrics.ObserveDispatch(servedProvider, capabilityLabel, "error", time.Since(start))
		}
		g.fail(ctx, reqID, md, err, len(attempts))
		return
	}

	won := cands[indexOfProvider(cands, results[winner].Provider)]
	resp, err := won.adapter.MapResponse(results[winner].Body, &req)
	if err != nil {
		g.fail(ctx, reqID, md, err, len(attempts))
		return
	}
	resp.Cached = results[winner].Cached
	servedProvider = resp.Provider

	fellBack := resp.Provider != primary.sub.Provider
	if fellBack {
		if g.metrics != nil {
			g.metrics.RecordFallback(primary.sub.Provider, resp.Provider)
		}
		md = md.WithTag("fallback", resp.Provider)
	}

	// 9. Enrich the tracing metadata with processing and performance blocks.
	elapsed := time.Since(start)
	md = md.WithProcessing(resp.Provider, won.model.Name, string(req.Capability), elapsed)
	costUSD := estimateCost(won.model, resp)
	perf := metadata.Performance{LatencyMs: elapsed.Milliseconds(), EstimatedCostUSD: costUSD}
	if resp.Usage != nil {
		perf.PromptTokens = resp.Usage.PromptTokens
		perf.CompletionTokens = resp.Usage.CompletionTokens
		perf.TotalTokens = resp.Usage.TotalTokens
	}
	md = md.WithPerformance(perf)
	resp.Metadata = md
	resp.ProcessingMs = elapsed.Milliseconds()

	// 10. Populate the local cache for future identical requests.
	if cacheKey != "" && !resp.Cached {
		g.storeCached(ctx, cacheKey, cacheTTL, resp)
	}

	if g.metrics != nil {
		g.metrics.ObserveDispatch(resp.Provider, capabilityLabel, "success", elapsed)
		if resp.Usage != nil {
			g.metrics.AddTokens(resp.Provider, capabilityLabel,
				resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}
		if costUSD > 0 {
			g.metrics.AddEstimatedCost(resp.Provider, capabilityLabel, costUSD)
		}
	}
	g.logDispatch(reqID, resp.Provider, won.model.Name, capabilityLabel,
		resp.Usage, elapsed, fasthttp.StatusOK, resp.Cached, fellBack, len(attempts)+1, costUSD)

	g.writeResponse(ctx, resp)
}

// buildCandidates selects the eligible providers and builds one enhanced
// sub-request per provider. An explicit provider becomes the primary and its
// build failure is fatal; with fallback enabled the remaining capable
// providers join the batch behind it, in registration order. Fallback build
// failures skip the provider with a warning.
func (g *Gateway) buildCandidates(req *unified.Request, reqID string) ([]candidate, error) {
	var out []candidate
	if req.Provider != "" {
		ad, ok := g.adapters[req.Provider]
		if !ok {
			return nil, &unified.ValidationError{
				Field:  "provider",
				Reason: fmt.Sprintf("unknown provider %q", req.Provider),
			}
		}
		c, err := g.newCandidate(ad, req)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		if !req.Fallback {
			return out, nil
		}
	}

	var lastErr error
	for _, p := range g.registry.Capable(req.Capability) {
		if p.Name == req.Provider {
			continue
		}
		ad, ok := g.adapters[p.Name]
		if !ok {
			continue
		}
		c, err := g.newCandidate(ad, req)
		if err != nil {
			lastErr = err
			g.log.Warn("sub_request_build_failed",
				slog.String("request_id", reqID),
				slog.String("provider", p.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, c)
		if !req.Fallback {
			break
		}
	}

	if len(out) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &unified.ValidationError{
			Field:  "capability",
			Reason: fmt.Sprintf("no configured provider serves capability %q", req.Capability),
		}
	}
	return out, nil
}

func (g *Gateway) newCandidate(ad adapters.Adapter, req *unified.Request) (candidate, error) {
	model, err := ad.ResolveModel(req)
	if err != nil {
		return candidate{}, err
	}
	sub, err := ad.BuildRequest(req)
	if err != nil {
		return candidate{}, err
	}
	if err := g.enhancer.Apply(sub, req, model); err != nil {
		return candidate{}, err
	}
	fab, _ := ad.(adapters.Fabricator)
	return candidate{adapter: ad, model: model, sub: sub, fab: fab}, nil
}

// collect produces one sub-response per candidate: fabricating adapters are
// answered locally; the rest go upstream as one batch wrapped by the retry
// service.
func (g *Gateway) collect(
	ctx context.Context,
	reqID string,
	req *unified.Request,
	cands []candidate,
) ([]upstream.SubResponse, []retry.Attempt, error) {
	results := make([]upstream.SubResponse, len(cands))

	var remote []*unified.GatewayRequest
	var remoteIdx []int
	for i, c := range cands {
		if c.fab == nil {
			remote = append(remote, c.sub)
			remoteIdx = append(remoteIdx, i)
			continue
		}
		body, err := c.fab.Fabricate(req)
		if err != nil {
			results[i] = upstream.SubResponse{
				Provider: c.sub.Provider,
				Status:   500,
				Body:     json.RawMessage(fmt.Sprintf("%q", err.Error())),
			}
			continue
		}
		results[i] = upstream.SubResponse{
			Provider: c.sub.Provider,
			Status:   200,
			Success:  true,
			Body:     body,
		}
	}

	if len(remote) == 0 {
		return results, nil, nil
	}
	if g.upstream == nil {
		return nil, nil, &unified.ConfigurationError{
			Component: "proxy",
			Reason:    "no upstream gateway configured for remote providers",
		}
	}

	batch, attempts, err := retry.Do(ctx, g.retrier, reqID,
		func(ctx context.Context) ([]upstream.SubResponse, error) {
			return g.upstream.Dispatch(ctx, remote)
		})
	if err != nil {
		return nil, attempts, err
	}
	if len(batch) != len(remote) {
		return nil, attempts, &unified.ProviderError{
			Provider: "upstream",
			Message:  fmt.Sprintf("batch reply size mismatch: sent %d, got %d", len(remote), len(batch)),
		}
	}
	for i, r := range batch {
		results[remoteIdx[i]] = r
	}
	return results, attempts, nil
}

// pickWinner returns the index of the sub-response to serve: the first
// successful one from the preferred provider, else the first success overall.
func pickWinner(preferred string, results []upstream.SubResponse) (int, bool) {
	for i, r := range results {
		if r.Success && r.Provider == preferred {
			return i, true
		}
	}
	for i, r := range results {
		if r.Success {
			return i, true
		}
	}
	return 0, false
}

func indexOfProvider(cands []candidate, provider string) int {
	for i, c := range cands {
		if c.sub.Provider == provider {
			return i
		}
	}
	return 0
}

// cachePlan decides local cacheability: returns the content key and TTL, or
// an empty key when the request must bypass the cache.
func (g *Gateway) cachePlan(req *unified.Request, model *registry.ModelConfig) (string, time.Duration) {
	if g.cache == nil || req.Stream {
		return "", 0
	}
	if g.cacheExclusions != nil && g.cacheExclusions.Matches(model.Name) {
		return "", 0
	}
	ttl := g.enhancer.TTLFor(req, model)
	if ttl <= 0 {
		return "", 0
	}
	return "dispatch:" + g.enhancer.CacheKey(req, model), ttl
}

// serveCached replays a cached unified response with this request's metadata.
func (g *Gateway) serveCached(
	ctx *fasthttp.RequestCtx,
	reqID string,
	req *unified.Request,
	md *metadata.RequestMetadata,
	body []byte,
	start time.Time,
) {
	var resp unified.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		// Undecodable cache entry: treat as a miss-shaped server error.
		g.fail(ctx, reqID, md, fmt.Errorf("cache: undecodable entry: %w", err), 0)
		return
	}
	elapsed := time.Since(start)
	resp.Cached = true
	resp.Metadata = md.WithProcessing(resp.Provider, resp.Model, string(req.Capability), elapsed)
	resp.ProcessingMs = elapsed.Milliseconds()

	g.log.DebugContext(ctx, "cache_hit",
		slog.String("request_id", reqID),
		slog.String("provider", resp.Provider),
		slog.String("model", resp.Model),
	)
	g.logDispatch(reqID, resp.Provider, resp.Model, string(req.Capability),
		resp.Usage, elapsed, fasthttp.StatusOK, true, false, 1, 0)
	g.writeResponse(ctx, &resp)
}

// storeCached persists the response without its per-request metadata so a
// replay carries the replaying request's trace, not the original one's.
func (g *Gateway) storeCached(ctx context.Context, key string, ttl time.Duration, resp *unified.Response) {
	stripped := *resp
	stripped.Metadata = nil
	stripped.ProcessingMs = 0
	body, err := json.Marshal(&stripped)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, key, body, ttl); err != nil {
		if g.metrics != nil {
			g.metrics.CacheSetError()
		}
		return
	}
	if g.metrics != nil {
		g.metrics.CacheSetOK()
	}
}

func (g *Gateway) writeResponse(ctx *fasthttp.RequestCtx, resp *unified.Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		apierr.Write(ctx, requestIDOf(resp), fasthttp.StatusInternalServerError,
			apierr.TypeServer, "failed to serialize response", nil)
		return
	}
	g.auth.CORSHeaders(ctx)
	ctx.Response.Header.Set("X-Provider", resp.Provider)
	ctx.Response.Header.Set("X-Processing-Time", strconv.FormatInt(resp.ProcessingMs, 10)+"ms")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func requestIDOf(resp *unified.Response) string {
	if resp.Metadata != nil {
		return resp.Metadata.RequestID
	}
	return ""
}

// fail records the error in the tracing metadata, logs it, and writes the
// uniform error envelope.
func (g *Gateway) fail(
	ctx *fasthttp.RequestCtx,
	reqID string,
	md *metadata.RequestMetadata,
	err error,
	attempts int,
) {
	if md != nil {
		md = md.WithError(metadata.ErrorInfo{
			Type:      fmt.Sprintf("%T", err),
			Message:   err.Error(),
			Retryable: g.retrier.IsRetryable(err),
			Attempts:  attempts,
		})
		if hv, hvErr := md.HeaderValue(); hvErr == nil {
			ctx.Response.Header.Set("X-Request-Metadata", hv)
		}
	}
	g.log.ErrorContext(ctx, "dispatch_failed",
		slog.String("request_id", reqID),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
	g.auth.CORSHeaders(ctx)
	apierr.WriteError(ctx, reqID, err)
}

// logDispatch enqueues a DispatchLog entry to the async logger. Never blocks.
func (g *Gateway) logDispatch(
	requestID, provider, model, capability string,
	usage *unified.Usage,
	latency time.Duration,
	status int,
	cached, fellBack bool,
	attempts int,
	costUSD float64,
) {
	if g.dispatchLog == nil {
		return
	}

	entry := logger.DispatchLog{
		ID:         uuid.New(),
		RequestID:  requestID,
		Provider:   provider,
		Model:      model,
		Capability: capability,
		LatencyMs:  clampUint32(latency.Milliseconds()),
		Status:     uint16(status),
		Cached:     cached,
		Fallback:   fellBack,
		Attempts:   clampUint8(attempts),
		CostUSD:    costUSD,
		CreatedAt:  time.Now(),
	}
	if usage != nil {
		entry.PromptTokens = clampUint32(int64(usage.PromptTokens))
		entry.CompletionTokens = clampUint32(int64(usage.CompletionTokens))
	}
	g.dispatchLog.Log(entry)
}

// estimateCost prices the response against the model's registered cost axes.
func estimateCost(model *registry.ModelConfig, resp *unified.Response) float64 {
	var usd float64
	if resp.Usage != nil {
		usd += float64(resp.Usage.PromptTokens) / 1000 * model.Cost.InputPer1K
		usd += float64(resp.Usage.CompletionTokens) / 1000 * model.Cost.OutputPer1K
	}
	if model.Cost.PerImage > 0 {
		usd += model.Cost.PerImage * float64(len(resp.Data))
	}
	usd += model.Cost.PerRequest
	return usd
}

func clampUint32(v int64) uint32 {
	if v < 0 {
		return 0
	}
	if v > 1<<32-1 {
		return 1<<32 - 1
	}
	return uint32(v)
}

func clampUint8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
