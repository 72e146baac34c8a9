// Command upstream runs a lightweight HTTP mock of the multi-provider
// gateway. It accepts the batched sub-request wire format and answers each
// sub-request with a dialect-correct fake response. Used for E2E/load
// testing without real credentials.
//
// Default listen address :19000; override with PORT_UPSTREAM.
//
// Behaviour flags (via env):
//
//	MOCK_LATENCY_MS   — artificial latency added to every batch (default 0)
//	MOCK_ERROR_RATE   — fraction [0,1] of sub-requests that return HTTP 500 (default 0)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Config holds runtime configuration for the mock gateway.
type Config struct {
	LatencyMS int
	ErrorRate float64
}

func loadConfig() Config {
	var c Config

	if v := os.Getenv("MOCK_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LatencyMS = n
		}
	}
	if v := os.Getenv("MOCK_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.ErrorRate = f
		}
	}
	return c
}

func portFromEnv(key string, defaultPort int) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return strconv.Itoa(defaultPort)
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadConfig()

	log.Info("starting mock upstream gateway",
		slog.Int("latency_ms", cfg.LatencyMS),
		slog.Float64("error_rate", cfg.ErrorRate),
	)

	gw := newGateway(cfg, log)

	addr := ":" + portFromEnv("PORT_UPSTREAM", 19000)
	srv := &http.Server{
		Addr:         addr,
		Handler:      gw,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("mock upstream listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	// Print readiness
	fmt.Println("READY")

	// Wait for signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down mock upstream")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	log.Info("mock upstream stopped")
}

// gateway is the batch handler. It simulates the upstream response cache
// using the cache headers the real gateway attaches to each sub-request.
type gateway struct {
	cfg   Config
	log   *slog.Logger
	cache *responseCache
}

func newGateway(cfg Config, log *slog.Logger) *gateway {
	return &gateway{cfg: cfg, log: log, cache: newResponseCache()}
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only", "invalid_request")
		return
	}
	if r.Header.Get("cf-aig-authorization") == "" {
		writeError(w, http.StatusUnauthorized, "missing cf-aig-authorization", "authentication_error")
		return
	}

	var batch []wireRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "undecodable batch: "+err.Error(), "invalid_request")
		return
	}
	if len(batch) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch", "invalid_request")
		return
	}

	applyLatency(g.cfg)

	results := make([]subResponse, len(batch))
	for i, sub := range batch {
		results[i] = g.answer(sub)
	}

	writeJSON(w, http.StatusOK, results)
}

// answer produces one sub-response, consulting the simulated response cache
// first.
func (g *gateway) answer(sub wireRequest) subResponse {
	cacheKey := sub.Headers["cf-aig-cache-key"]
	skipCache := strings.EqualFold(sub.Headers["cf-aig-skip-cache"], "true")
	if ns := sub.Headers["cf-aig-cache-namespace"]; ns != "" {
		cacheKey = ns + ":" + cacheKey
	}

	if cacheKey != "" && !skipCache {
		if body, ok := g.cache.get(cacheKey); ok {
			return subResponse{Provider: sub.Provider, Status: 200, Success: true, Body: body, Cached: true}
		}
	}

	if shouldError(g.cfg) {
		return subResponse{
			Provider: sub.Provider,
			Status:   http.StatusInternalServerError,
			Body:     mustJSON(map[string]string{"error": "injected failure"}),
		}
	}

	status, payload := g.fabricate(sub)
	body := mustJSON(payload)
	if status == 200 && cacheKey != "" && !skipCache {
		g.cache.put(cacheKey, body)
	}
	return subResponse{Provider: sub.Provider, Status: status, Success: status < 300, Body: body}
}

// fabricate routes a sub-request to its provider dialect.
func (g *gateway) fabricate(sub wireRequest) (int, any) {
	switch sub.Provider {
	case "openai":
		return respondOpenAI(sub)
	case "anthropic":
		return respondAnthropic(sub)
	case "google":
		return respondGoogle(sub)
	case "workers":
		return respondWorkers(sub)
	default:
		return http.StatusBadGateway, map[string]string{
			"error": "unknown provider " + sub.Provider,
		}
	}
}
