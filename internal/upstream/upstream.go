// Package upstream talks to the multi-provider gateway: it serializes a
// batch of provider-addressed sub-requests into one POST, transforms each
// endpoint into the upstream's expected relative form, and decodes the
// per-sub-request results.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/briefwire/ai-gateway/internal/unified"
)

// HeaderAuthorization carries the gateway bearer token.
const HeaderAuthorization = "cf-aig-authorization"

// transform describes how one provider's absolute endpoint becomes the
// relative form the upstream expects. Exactly one strategy applies per
// provider; the table keeps this out of the call sites.
type transform struct {
	// stripPrefix removes a fixed base URL, leaving the provider-relative
	// path.
	stripPrefix string

	// slugMarker extracts everything after the marker, for providers
	// addressed by a model slug rather than a path.
	slugMarker string
}

var endpointTransforms = map[string]transform{
	"openai":    {stripPrefix: "https://api.openai.com/v1/"},
	"anthropic": {stripPrefix: "https://api.anthropic.com/v1/"},
	"google":    {stripPrefix: "https://generativelanguage.googleapis.com/v1beta/"},
	"workers":   {slugMarker: "/ai/run/"},
}

// TransformEndpoint rewrites an absolute endpoint into the upstream's
// relative form for the provider. Unknown providers fall back to the URL
// path.
func TransformEndpoint(provider, endpoint string) string {
	t, ok := endpointTransforms[provider]
	if ok {
		if t.slugMarker != "" {
			if i := strings.Index(endpoint, t.slugMarker); i >= 0 {
				return endpoint[i+len(t.slugMarker):]
			}
		}
		if t.stripPrefix != "" && strings.HasPrefix(endpoint, t.stripPrefix) {
			return strings.TrimPrefix(endpoint, t.stripPrefix)
		}
	}
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return strings.TrimPrefix(u.Path, "/")
	}
	return strings.TrimPrefix(endpoint, "/")
}

// SubResponse is one provider's result inside the batched reply.
type SubResponse struct {
	Provider string          `json:"provider"`
	Status   int             `json:"status"`
	Success  bool            `json:"success"`
	Body     json.RawMessage `json:"body"`
	Cached   bool            `json:"cached"`
}

// wireRequest is the serialized form of one sub-request.
type wireRequest struct {
	Provider string            `json:"provider"`
	Endpoint string            `json:"endpoint"`
	Headers  map[string]string `json:"headers"`
	Query    map[string]string `json:"query,omitempty"`
	Body     json.RawMessage   `json:"body,omitempty"`
}

// Client submits batches to the upstream gateway.
type Client struct {
	endpoint string
	token    string
	timeout  time.Duration
	http     *fasthttp.Client
	log      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-batch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the fasthttp client (used in tests).
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient builds the upstream client. The endpoint and token are required.
func NewClient(endpoint, token string, log *slog.Logger, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, &unified.ConfigurationError{Component: "upstream", Reason: "no gateway endpoint configured"}
	}
	if token == "" {
		return nil, &unified.ConfigurationError{Component: "upstream", Reason: "no gateway token configured"}
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		endpoint: endpoint,
		token:    token,
		timeout:  60 * time.Second,
		http: &fasthttp.Client{
			MaxConnsPerHost:     512,
			ReadTimeout:         60 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 90 * time.Second,
		},
		log: log,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Dispatch submits the sub-requests as one batched POST and returns the
// per-sub-request results in upstream order.
func (c *Client) Dispatch(ctx context.Context, subs []*unified.GatewayRequest) ([]SubResponse, error) {
	if len(subs) == 0 {
		return nil, fmt.Errorf("upstream: empty batch")
	}

	wire := make([]wireRequest, len(subs))
	for i, s := range subs {
		wire[i] = wireRequest{
			Provider: s.Provider,
			Endpoint: TransformEndpoint(s.Provider, s.Endpoint),
			Headers:  s.Headers,
			Query:    s.Query,
			Body:     json.RawMessage(s.Body),
		}
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("upstream: encode batch: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(HeaderAuthorization, "Bearer "+c.token)
	req.SetBody(payload)

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	started := time.Now()
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		c.log.Warn("upstream: batch call failed",
			"subRequests", len(subs), "elapsed", time.Since(started), "error", err)
		return nil, &unified.ProviderError{Provider: "upstream", Message: err.Error()}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return nil, &unified.ProviderError{
			Provider: "upstream",
			Status:   status,
			Message:  truncate(string(resp.Body()), 512),
		}
	}

	results, err := decodeBatch(resp.Body())
	if err != nil {
		return nil, &unified.ProviderError{Provider: "upstream", Message: err.Error()}
	}

	c.log.Debug("upstream: batch complete",
		"subRequests", len(subs), "results", len(results), "elapsed", time.Since(started))
	return results, nil
}

// decodeBatch accepts both reply forms the upstream produces: a bare array
// of sub-responses, or an object wrapping them under "responses".
func decodeBatch(body []byte) ([]SubResponse, error) {
	var direct []SubResponse
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct, nil
	}
	var wrapped struct {
		Responses []SubResponse `json:"responses"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil || wrapped.Responses == nil {
		return nil, fmt.Errorf("upstream: undecodable batch reply")
	}
	return wrapped.Responses, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
