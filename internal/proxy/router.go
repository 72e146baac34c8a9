package proxy

import (
	"encoding/json"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// RouteHandler is a fasthttp handler function.
type RouteHandler = fasthttp.RequestHandler

// ManagementRoutes holds optional management API handler functions
// that are registered alongside the dispatch routes.
type ManagementRoutes struct {
	Metrics RouteHandler
}

// Start starts the HTTP server on addr (e.g. ":8080").
// Pass nil for routes to start in dispatch-only mode.
func (g *Gateway) Start(addr string) error {
	return g.StartWithRoutes(addr, nil)
}

// StartWithRoutes starts the HTTP server with optional management routes.
func (g *Gateway) StartWithRoutes(addr string, mgmt *ManagementRoutes) error {
	srv := g.server(mgmt)
	return srv.ListenAndServe(addr)
}

// server assembles the router and middleware chain. Split from Start so tests
// can drive the full handler without a listening socket.
func (g *Gateway) server(mgmt *ManagementRoutes) *fasthttp.Server {
	r := router.New()

	r.POST("/v1/dispatch", g.handleDispatch)
	r.OPTIONS("/v1/dispatch", g.handlePreflight)
	r.GET("/health", g.handleHealth)
	r.GET("/readiness", g.handleReadiness)

	if mgmt != nil && mgmt.Metrics != nil {
		r.GET("/metrics", mgmt.Metrics)
	}

	handler := applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		securityHeaders,
	)

	return &fasthttp.Server{
		Handler:      handler,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
}

// Handler returns the fully wired request handler (used in tests).
func (g *Gateway) Handler(mgmt *ManagementRoutes) fasthttp.RequestHandler {
	return g.server(mgmt).Handler
}

func (g *Gateway) handleDispatch(ctx *fasthttp.RequestCtx) {
	g.dispatch(ctx)
}

func (g *Gateway) handlePreflight(ctx *fasthttp.RequestCtx) {
	g.auth.Preflight(ctx)
}

func (g *Gateway) handleHealth(ctx *fasthttp.RequestCtx) {
	providers := make([]string, 0, len(g.adapters))
	for _, name := range g.registry.Names() {
		if _, ok := g.adapters[name]; ok {
			providers = append(providers, name)
		}
	}
	writeJSON(ctx, map[string]any{
		"status":    "ok",
		"version":   g.version,
		"providers": providers,
	})
}

func (g *Gateway) handleReadiness(ctx *fasthttp.RequestCtx) {
	if g.cacheReady == nil || g.cacheReady() {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	writeJSON(ctx, map[string]string{"status": "unavailable"})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
