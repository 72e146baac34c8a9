// Package metadata builds and enriches the request-tracing record that
// accompanies a request through every component.
//
// A RequestMetadata value is owned by exactly one request. Enrichment
// functions are copy-on-write: they return a new value instead of mutating in
// place, so concurrent requests can never interleave each other's metadata.
// Authorization-bearing headers are never copied into metadata; log rendering
// additionally redacts any field whose name matches a sensitive pattern.
package metadata

import (
	"crypto/rand"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	// requestIDPrefix + requestIDLength define the fixed lexical shape of a
	// request id, e.g. "req_a1B2c3D4e5F6g7H8".
	requestIDPrefix = "req_"
	requestIDLength = 16

	// customTagPrefix marks inbound headers copied into the custom tag map.
	customTagPrefix = "x-meta-"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// sensitivePattern matches header/field names that must never appear in
// metadata or logs.
var sensitivePattern = regexp.MustCompile(`(?i)(key|secret|token|password|credential|auth)`)

// safeHeaders is the subset of inbound headers recorded verbatim.
var safeHeaders = []string{
	"Content-Type",
	"Accept",
	"Accept-Language",
	"User-Agent",
	"Referer",
}

type (
	// Processing records which backend actually served the request.
	Processing struct {
		Provider   string `json:"provider"`
		Model      string `json:"model"`
		Capability string `json:"capability"`
		DurationMs int64  `json:"durationMs"`
	}

	// Performance records token usage, latency, and estimated cost.
	Performance struct {
		PromptTokens     int     `json:"promptTokens"`
		CompletionTokens int     `json:"completionTokens"`
		TotalTokens      int     `json:"totalTokens"`
		LatencyMs        int64   `json:"latencyMs"`
		EstimatedCostUSD float64 `json:"estimatedCostUsd,omitempty"`
	}

	// ErrorInfo classifies a failure for the tracing record.
	ErrorInfo struct {
		Type      string `json:"type"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
		Attempts  int    `json:"attempts"`
	}

	// RequestMetadata is the tracing record for one request.
	RequestMetadata struct {
		RequestID string    `json:"requestId"`
		CreatedAt time.Time `json:"createdAt"`

		UserID   string `json:"userId,omitempty"`
		ClientID string `json:"clientId,omitempty"`

		// Network provenance.
		ClientIP  string `json:"clientIp,omitempty"`
		Origin    string `json:"origin,omitempty"`
		UserAgent string `json:"userAgent,omitempty"`

		// Edge-network fields forwarded by an upstream edge.
		EdgeRay     string `json:"edgeRay,omitempty"`
		EdgeCountry string `json:"edgeCountry,omitempty"`

		// Safe subset of inbound headers.
		Headers map[string]string `json:"headers,omitempty"`

		// Custom tags supplied under the X-Meta-* header prefix.
		Custom map[string]string `json:"custom,omitempty"`

		TraceID string `json:"traceId,omitempty"`
		SpanID  string `json:"spanId,omitempty"`

		Processing  *Processing  `json:"processing,omitempty"`
		Performance *Performance `json:"performance,omitempty"`
		Error       *ErrorInfo   `json:"error,omitempty"`
	}
)

// NewRequestID mints a request id in the fixed lexical shape: a short fixed
// prefix followed by a fixed-length alphanumeric suffix.
func NewRequestID() string {
	buf := make([]byte, requestIDLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// timestamp-derived suffix just in case.
		now := time.Now().UnixNano()
		for i := range buf {
			buf[i] = idAlphabet[int(now>>uint(i%8))%len(idAlphabet)]
		}
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return requestIDPrefix + string(buf)
}

// IsRequestID reports whether s has the canonical request-id shape.
func IsRequestID(s string) bool {
	if !strings.HasPrefix(s, requestIDPrefix) {
		return false
	}
	suffix := s[len(requestIDPrefix):]
	if len(suffix) != requestIDLength {
		return false
	}
	for _, r := range suffix {
		if !strings.ContainsRune(idAlphabet, r) {
			return false
		}
	}
	return true
}

// FromRequest builds the initial RequestMetadata from inbound request headers.
// Authorization-bearing headers are never copied in.
func FromRequest(ctx *fasthttp.RequestCtx, requestID string) *RequestMetadata {
	if requestID == "" {
		requestID = NewRequestID()
	}

	md := &RequestMetadata{
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),

		UserID:   string(ctx.Request.Header.Peek("X-User-ID")),
		ClientID: string(ctx.Request.Header.Peek("X-Client-ID")),

		ClientIP:  clientIP(ctx),
		Origin:    string(ctx.Request.Header.Peek("Origin")),
		UserAgent: string(ctx.Request.Header.Peek("User-Agent")),

		EdgeRay:     string(ctx.Request.Header.Peek("CF-Ray")),
		EdgeCountry: string(ctx.Request.Header.Peek("CF-IPCountry")),
	}

	for _, h := range safeHeaders {
		if v := ctx.Request.Header.Peek(h); len(v) > 0 {
			if md.Headers == nil {
				md.Headers = make(map[string]string)
			}
			md.Headers[h] = string(v)
		}
	}

	ctx.Request.Header.VisitAll(func(key, value []byte) {
		name := strings.ToLower(string(key))
		if !strings.HasPrefix(name, customTagPrefix) {
			return
		}
		tag := strings.TrimPrefix(name, customTagPrefix)
		if tag == "" || IsSensitive(tag) {
			return
		}
		if md.Custom == nil {
			md.Custom = make(map[string]string)
		}
		md.Custom[tag] = string(value)
	})

	return md
}

// clientIP resolves the caller's address, preferring edge-supplied headers
// over the socket peer.
func clientIP(ctx *fasthttp.RequestCtx) string {
	if v := ctx.Request.Header.Peek("CF-Connecting-IP"); len(v) > 0 {
		return string(v)
	}
	if v := ctx.Request.Header.Peek("X-Forwarded-For"); len(v) > 0 {
		// First hop in the chain is the original client.
		if i := strings.IndexByte(string(v), ','); i > 0 {
			return strings.TrimSpace(string(v)[:i])
		}
		return string(v)
	}
	return ctx.RemoteIP().String()
}

// clone returns a deep copy so enrichment never aliases the original maps.
func (m *RequestMetadata) clone() *RequestMetadata {
	cp := *m
	if m.Headers != nil {
		cp.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			cp.Headers[k] = v
		}
	}
	if m.Custom != nil {
		cp.Custom = make(map[string]string, len(m.Custom))
		for k, v := range m.Custom {
			cp.Custom[k] = v
		}
	}
	return &cp
}

// WithProcessing returns a copy enriched with processing info.
func (m *RequestMetadata) WithProcessing(provider, model, capability string, duration time.Duration) *RequestMetadata {
	cp := m.clone()
	cp.Processing = &Processing{
		Provider:   provider,
		Model:      model,
		Capability: capability,
		DurationMs: duration.Milliseconds(),
	}
	return cp
}

// WithPerformance returns a copy enriched with performance metrics.
func (m *RequestMetadata) WithPerformance(p Performance) *RequestMetadata {
	cp := m.clone()
	cp.Performance = &p
	return cp
}

// WithError returns a copy enriched with error classification.
func (m *RequestMetadata) WithError(e ErrorInfo) *RequestMetadata {
	cp := m.clone()
	cp.Error = &e
	return cp
}

// WithTrace returns a copy carrying the active trace/span ids.
func (m *RequestMetadata) WithTrace(traceID, spanID string) *RequestMetadata {
	cp := m.clone()
	cp.TraceID = traceID
	cp.SpanID = spanID
	return cp
}

// WithTag returns a copy with one custom tag added. Used for fallback events
// and similar one-off annotations.
func (m *RequestMetadata) WithTag(key, value string) *RequestMetadata {
	cp := m.clone()
	if cp.Custom == nil {
		cp.Custom = make(map[string]string, 1)
	}
	cp.Custom[key] = value
	return cp
}

// HeaderValue renders the compact outbound form of the metadata, suitable for
// the upstream gateway's metadata header. Only identity and tags are sent;
// enrichment blocks stay server-side.
func (m *RequestMetadata) HeaderValue() (string, error) {
	out := map[string]string{
		"requestId": m.RequestID,
		"timestamp": m.CreatedAt.Format(time.RFC3339),
	}
	if m.UserID != "" {
		out["userId"] = m.UserID
	}
	if m.ClientID != "" {
		out["clientId"] = m.ClientID
	}
	if m.EdgeCountry != "" {
		out["country"] = m.EdgeCountry
	}
	for k, v := range m.Custom {
		if !IsSensitive(k) {
			out[k] = v
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsSensitive reports whether a field name must be redacted from metadata and
// logs.
func IsSensitive(name string) bool {
	return sensitivePattern.MatchString(name)
}

// Redacted returns a copy of fields with sensitive values masked. Used when
// rendering metadata into server-side logs.
func Redacted(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if IsSensitive(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}
