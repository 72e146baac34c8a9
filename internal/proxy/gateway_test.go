package proxy

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/briefwire/ai-gateway/internal/adapters"
	mockadapter "github.com/briefwire/ai-gateway/internal/adapters/mock"
	openaiadapter "github.com/briefwire/ai-gateway/internal/adapters/openai"
	"github.com/briefwire/ai-gateway/internal/auth"
	"github.com/briefwire/ai-gateway/internal/cache"
	"github.com/briefwire/ai-gateway/internal/metadata"
	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/retry"
	"github.com/briefwire/ai-gateway/internal/unified"
	"github.com/briefwire/ai-gateway/internal/upstream"
)

// newGateway wires a Gateway onto the fabricating mock adapter only, so no
// network or upstream client is involved.
func newGateway(t *testing.T, mutate func(*Options)) *Gateway {
	t.Helper()

	reg := registry.Default()
	provider, ok := reg.Provider(registry.ProviderMock)
	if !ok {
		t.Fatal("mock provider missing from catalog")
	}
	ad, err := mockadapter.New(provider)
	if err != nil {
		t.Fatalf("mock adapter: %v", err)
	}
	retrier, err := retry.NewService(retry.DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("retry service: %v", err)
	}

	opts := Options{
		Auth:     auth.NewService([]string{"dev-key"}, nil),
		Registry: reg,
		Adapters: map[string]adapters.Adapter{registry.ProviderMock: ad},
		Retry:    retrier,
		Version:  "test",
	}
	if mutate != nil {
		mutate(&opts)
	}

	g, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func serve(h fasthttp.RequestHandler, method, uri string, body []byte, headers map[string]string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	h(ctx)
	return ctx
}

func authed() map[string]string {
	return map[string]string{"Authorization": "Bearer dev-key"}
}

func chatBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"capability": "chat",
		"messages": []map[string]string{
			{"role": "user", "content": "hello there"},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestDispatchSuccess(t *testing.T) {
	g := newGateway(t, nil)
	h := g.Handler(nil)

	ctx := serve(h, fasthttp.MethodPost, "http://gw/v1/dispatch", chatBody(t), authed())
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d (body: %s)", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	var resp unified.Response
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Provider != "mock" {
		t.Errorf("provider = %q", resp.Provider)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content == "" {
		t.Errorf("choices = %+v", resp.Choices)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens <= 0 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.Cached {
		t.Error("fresh response marked cached")
	}

	reqID := string(ctx.Response.Header.Peek("X-Request-ID"))
	if !metadata.IsRequestID(reqID) {
		t.Errorf("X-Request-ID = %q", reqID)
	}
	if resp.Metadata == nil || resp.Metadata.RequestID != reqID {
		t.Errorf("metadata request id does not match header (%+v)", resp.Metadata)
	}
	if resp.Metadata.Processing == nil || resp.Metadata.Processing.Provider != "mock" {
		t.Errorf("processing block = %+v", resp.Metadata.Processing)
	}
	if got := string(ctx.Response.Header.Peek("X-Provider")); got != "mock" {
		t.Errorf("X-Provider = %q", got)
	}
	if got := string(ctx.Response.Header.Peek("X-Processing-Time")); !strings.HasSuffix(got, "ms") {
		t.Errorf("X-Processing-Time = %q", got)
	}
}

func TestDispatchCacheHit(t *testing.T) {
	mem := cache.NewMemoryCache(context.Background())
	defer mem.Close()

	g := newGateway(t, func(o *Options) { o.Cache = mem })
	h := g.Handler(nil)
	body := chatBody(t)

	first := serve(h, fasthttp.MethodPost, "http://gw/v1/dispatch", body, authed())
	if first.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("first status = %d", first.Response.StatusCode())
	}
	var firstResp unified.Response
	if err := json.Unmarshal(first.Response.Body(), &firstResp); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if firstResp.Cached {
		t.Fatal("first response marked cached")
	}

	second := serve(h, fasthttp.MethodPost, "http://gw/v1/dispatch", body, authed())
	if second.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("second status = %d", second.Response.StatusCode())
	}
	var secondResp unified.Response
	if err := json.Unmarshal(second.Response.Body(), &secondResp); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if !secondResp.Cached {
		t.Error("identical request did not hit the cache")
	}
	if secondResp.Provider != firstResp.Provider || secondResp.ID != firstResp.ID {
		t.Errorf("replay differs: %+v vs %+v", secondResp, firstResp)
	}
	// The replay carries its own trace, not the original request's.
	if firstResp.Metadata == nil || secondResp.Metadata == nil {
		t.Fatal("metadata missing from a dispatch response")
	}
	if secondResp.Metadata.RequestID == firstResp.Metadata.RequestID {
		t.Error("cached replay reused the original request id")
	}
}

func TestConcurrentDispatchIsolation(t *testing.T) {
	g := newGateway(t, nil)
	h := g.Handler(nil)
	body := chatBody(t)

	const n = 16
	responses := make([]unified.Response, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := serve(h, fasthttp.MethodPost, "http://gw/v1/dispatch", body, authed())
			if ctx.Response.StatusCode() != fasthttp.StatusOK {
				t.Errorf("status = %d", ctx.Response.StatusCode())
				return
			}
			if err := json.Unmarshal(ctx.Response.Body(), &responses[i]); err != nil {
				t.Errorf("decode: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for i, resp := range responses {
		if resp.Metadata == nil {
			t.Fatalf("response %d has no metadata", i)
		}
		id := resp.Metadata.RequestID
		if !metadata.IsRequestID(id) {
			t.Errorf("response %d request id = %q", i, id)
		}
		if _, dup := seen[id]; dup {
			t.Errorf("request id %q served to two requests", id)
		}
		seen[id] = struct{}{}
		if resp.Metadata.Processing == nil {
			t.Errorf("response %d has no processing block", i)
		}
	}
}

type errEnvelope struct {
	Success bool `json:"success"`
	Error   struct {
		Message string   `json:"message"`
		Type    string   `json:"type"`
		Status  int      `json:"status"`
		Errors  []string `json:"errors"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"requestId"`
	} `json:"meta"`
}

func decodeErr(t *testing.T, ctx *fasthttp.RequestCtx) errEnvelope {
	t.Helper()
	var env errEnvelope
	if err := json.Unmarshal(ctx.Response.Body(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, ctx.Response.Body())
	}
	return env
}

func TestDispatchRejectsMissingCredentials(t *testing.T) {
	g := newGateway(t, nil)
	h := g.Handler(nil)

	ctx := serve(h, fasthttp.MethodPost, "http://gw/v1/dispatch", chatBody(t), nil)
	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	env := decodeErr(t, ctx)
	if env.Success {
		t.Error("success = true on an auth failure")
	}
	if env.Error.Type != "authentication_error" {
		t.Errorf("type = %q", env.Error.Type)
	}
	if len(env.Error.Errors) == 0 {
		t.Error("no failure detail in the envelope")
	}
	if env.Meta.RequestID == "" {
		t.Error("meta request id missing")
	}
}

func TestDispatchRejectsMalformedBody(t *testing.T) {
	g := newGateway(t, nil)
	h := g.Handler(nil)

	ctx := serve(h, fasthttp.MethodPost, "http://gw/v1/dispatch", []byte("{not json"), authed())
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	if env := decodeErr(t, ctx); env.Error.Type != "validation_error" {
		t.Errorf("type = %q", env.Error.Type)
	}
}

func TestDispatchRejectsUnknownProvider(t *testing.T) {
	g := newGateway(t, nil)
	h := g.Handler(nil)

	body, _ := json.Marshal(map[string]any{
		"capability": "chat",
		"provider":   "nope",
		"messages":   []map[string]string{{"role": "user", "content": "hi"}},
	})
	ctx := serve(h, fasthttp.MethodPost, "http://gw/v1/dispatch", body, authed())
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	env := decodeErr(t, ctx)
	if !strings.Contains(env.Error.Message, "unknown provider") {
		t.Errorf("message = %q", env.Error.Message)
	}
}

func TestDispatchRejectsUnservedCapability(t *testing.T) {
	// The mock adapter fabricates chat, embedding, and image only.
	g := newGateway(t, nil)
	h := g.Handler(nil)

	body, _ := json.Marshal(map[string]any{
		"capability": "text-to-speech",
		"prompt":     "read me",
	})
	ctx := serve(h, fasthttp.MethodPost, "http://gw/v1/dispatch", body, authed())
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d (body: %s)", ctx.Response.StatusCode(), ctx.Response.Body())
	}
}

func TestBuildCandidatesExplicitProvider(t *testing.T) {
	openaiCfg, ok := registry.Default().Provider(registry.ProviderOpenAI)
	if !ok {
		t.Fatal("openai provider missing from catalog")
	}
	oa, err := openaiadapter.New(openaiCfg, "sk-test")
	if err != nil {
		t.Fatalf("openai adapter: %v", err)
	}
	g := newGateway(t, func(o *Options) {
		o.Adapters[registry.ProviderOpenAI] = oa
	})

	chatReq := func(fallback bool) *unified.Request {
		req := &unified.Request{
			RawCapability: "chat",
			Provider:      registry.ProviderOpenAI,
			Fallback:      fallback,
			Messages:      []unified.Message{{Role: "user", Content: "hi"}},
		}
		if err := req.Normalize(); err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		return req
	}

	t.Run("pinned provider without fallback builds one sub-request", func(t *testing.T) {
		cands, err := g.buildCandidates(chatReq(false), "req_a")
		if err != nil {
			t.Fatalf("buildCandidates: %v", err)
		}
		if len(cands) != 1 || cands[0].sub.Provider != registry.ProviderOpenAI {
			t.Errorf("candidates = %d, first = %q", len(cands), cands[0].sub.Provider)
		}
	})

	t.Run("pinned provider with fallback adds the remaining capable providers", func(t *testing.T) {
		cands, err := g.buildCandidates(chatReq(true), "req_b")
		if err != nil {
			t.Fatalf("buildCandidates: %v", err)
		}
		if len(cands) != 2 {
			t.Fatalf("candidates = %d, want 2", len(cands))
		}
		// The pinned provider stays first so winner preference holds.
		if cands[0].sub.Provider != registry.ProviderOpenAI {
			t.Errorf("primary = %q", cands[0].sub.Provider)
		}
		if cands[1].sub.Provider != registry.ProviderMock {
			t.Errorf("fallback = %q", cands[1].sub.Provider)
		}
	})

	t.Run("pinned provider is not duplicated in the fallback scan", func(t *testing.T) {
		cands, err := g.buildCandidates(chatReq(true), "req_c")
		if err != nil {
			t.Fatalf("buildCandidates: %v", err)
		}
		seen := map[string]int{}
		for _, c := range cands {
			seen[c.sub.Provider]++
		}
		if seen[registry.ProviderOpenAI] != 1 {
			t.Errorf("openai appears %d times", seen[registry.ProviderOpenAI])
		}
	})
}

func TestHealth(t *testing.T) {
	g := newGateway(t, nil)
	h := g.Handler(nil)

	ctx := serve(h, fasthttp.MethodGet, "http://gw/health", nil, nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	var out struct {
		Status    string   `json:"status"`
		Version   string   `json:"version"`
		Providers []string `json:"providers"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "ok" || out.Version != "test" {
		t.Errorf("health = %+v", out)
	}
	// Only providers with a configured adapter are advertised.
	if len(out.Providers) != 1 || out.Providers[0] != registry.ProviderMock {
		t.Errorf("providers = %v", out.Providers)
	}
}

func TestReadiness(t *testing.T) {
	t.Run("ready without a cache probe", func(t *testing.T) {
		g := newGateway(t, nil)
		ctx := serve(g.Handler(nil), fasthttp.MethodGet, "http://gw/readiness", nil, nil)
		if ctx.Response.StatusCode() != fasthttp.StatusOK {
			t.Errorf("status = %d", ctx.Response.StatusCode())
		}
	})

	t.Run("unavailable when the cache probe fails", func(t *testing.T) {
		g := newGateway(t, func(o *Options) {
			o.CacheReady = func() bool { return false }
		})
		ctx := serve(g.Handler(nil), fasthttp.MethodGet, "http://gw/readiness", nil, nil)
		if ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
			t.Errorf("status = %d", ctx.Response.StatusCode())
		}
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	g := newGateway(t, nil)
	h := g.Handler(nil)

	t.Run("well-formed client id is kept", func(t *testing.T) {
		id := "req_abcdef0123456789"
		ctx := serve(h, fasthttp.MethodGet, "http://gw/health", nil, map[string]string{"X-Request-ID": id})
		if got := string(ctx.Response.Header.Peek("X-Request-ID")); got != id {
			t.Errorf("X-Request-ID = %q", got)
		}
	})

	t.Run("malformed client id is replaced", func(t *testing.T) {
		ctx := serve(h, fasthttp.MethodGet, "http://gw/health", nil, map[string]string{"X-Request-ID": "evil\r\nid"})
		got := string(ctx.Response.Header.Peek("X-Request-ID"))
		if !metadata.IsRequestID(got) {
			t.Errorf("X-Request-ID = %q", got)
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	g := newGateway(t, nil)
	ctx := serve(g.Handler(nil), fasthttp.MethodGet, "http://gw/health", nil, nil)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'",
	}
	for name, value := range want {
		if got := string(ctx.Response.Header.Peek(name)); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
	if got := string(ctx.Response.Header.Peek("X-Response-Time")); got == "" {
		t.Error("X-Response-Time missing")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := applyMiddleware(func(ctx *fasthttp.RequestCtx) {
		panic("boom")
	}, recovery)

	ctx := serve(panicking, fasthttp.MethodGet, "http://gw/health", nil, nil)
	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Errorf("status = %d", ctx.Response.StatusCode())
	}
	if !strings.Contains(string(ctx.Response.Body()), "server_error") {
		t.Errorf("body = %s", ctx.Response.Body())
	}
}

func TestPickWinner(t *testing.T) {
	results := []upstream.SubResponse{
		{Provider: "openai", Success: false, Status: 502},
		{Provider: "anthropic", Success: true, Status: 200},
		{Provider: "google", Success: true, Status: 200},
	}

	t.Run("preferred provider wins when successful", func(t *testing.T) {
		if i, ok := pickWinner("google", results); !ok || i != 2 {
			t.Errorf("winner = %d, ok = %v", i, ok)
		}
	})

	t.Run("first success wins when the preferred one failed", func(t *testing.T) {
		if i, ok := pickWinner("openai", results); !ok || i != 1 {
			t.Errorf("winner = %d, ok = %v", i, ok)
		}
	})

	t.Run("no success", func(t *testing.T) {
		all := []upstream.SubResponse{{Provider: "openai", Status: 500}}
		if _, ok := pickWinner("openai", all); ok {
			t.Error("winner picked from an all-failure batch")
		}
	})
}

func TestEstimateCost(t *testing.T) {
	model := &registry.ModelConfig{
		Name: "m",
		Cost: registry.Cost{InputPer1K: 1.0, OutputPer1K: 2.0, PerImage: 0.04, PerRequest: 0.001},
	}
	resp := &unified.Response{
		Usage: &unified.Usage{PromptTokens: 1000, CompletionTokens: 500},
		Data:  []unified.DataItem{{URL: "u"}, {URL: "v"}},
	}

	// 1.0 input + 1.0 output + 0.08 images + 0.001 flat.
	got := estimateCost(model, resp)
	want := 2.081
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("estimateCost = %v, want %v", got, want)
	}
}
