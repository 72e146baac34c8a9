// Package auth validates inbound requests before any provider work happens:
// API key against an allow-list, origin against an allow-list, and an
// optional pluggable request signature. All three checks always run and
// their failures are aggregated, so a rejected caller sees every reason at
// once. The package also owns CORS header production and preflight handling.
package auth

import (
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/briefwire/ai-gateway/internal/metadata"
	"github.com/briefwire/ai-gateway/internal/unified"
)

const (
	headerAuthorization = "Authorization"
	headerAPIKey        = "X-API-Key"
	bearerPrefix        = "Bearer "
)

// Error aggregates every validation failure of one request. Always a 401.
type Error struct {
	Failures []string
}

func (e *Error) Error() string {
	return "authentication failed: " + strings.Join(e.Failures, "; ")
}

func (e *Error) HTTPStatus() int { return 401 }

// FailureList exposes the individual failure messages for the error envelope.
func (e *Error) FailureList() []string { return e.Failures }

// SignatureValidator checks an optional request signature. The default
// accepts everything.
type SignatureValidator interface {
	ValidateSignature(signature string, body []byte) error
}

type noopSignature struct{}

func (noopSignature) ValidateSignature(string, []byte) error { return nil }

// Service holds the allow-lists and the signature hook.
type Service struct {
	apiKeys        map[string]struct{}
	allowedOrigins map[string]struct{}
	signature      SignatureValidator
}

// Option configures a Service.
type Option func(*Service)

// WithSignatureValidator replaces the no-op signature check.
func WithSignatureValidator(v SignatureValidator) Option {
	return func(s *Service) { s.signature = v }
}

// NewService builds the auth service from the configured allow-lists.
func NewService(apiKeys, origins []string, opts ...Option) *Service {
	s := &Service{
		apiKeys:        make(map[string]struct{}, len(apiKeys)),
		allowedOrigins: make(map[string]struct{}, len(origins)),
		signature:      noopSignature{},
	}
	for _, k := range apiKeys {
		if k != "" {
			s.apiKeys[k] = struct{}{}
		}
	}
	for _, o := range origins {
		if o != "" {
			s.allowedOrigins[strings.ToLower(o)] = struct{}{}
		}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Authenticate runs every check, aggregates failures, and on success returns
// the resolved credentials plus a freshly minted request id.
func (s *Service) Authenticate(ctx *fasthttp.RequestCtx) (*unified.Auth, string, error) {
	var failures []string

	key, keyErr := s.extractKey(ctx)
	if keyErr != "" {
		failures = append(failures, keyErr)
	}

	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin != "" && !s.originAllowed(origin) {
		failures = append(failures, fmt.Sprintf("origin %q is not allowed", origin))
	}

	sig := string(ctx.Request.Header.Peek("X-Signature"))
	if err := s.signature.ValidateSignature(sig, ctx.PostBody()); err != nil {
		failures = append(failures, "invalid request signature: "+err.Error())
	}

	if len(failures) > 0 {
		return nil, "", &Error{Failures: failures}
	}

	return &unified.Auth{
		APIKey:    key,
		Origin:    origin,
		Signature: sig,
		ClientID:  string(ctx.Request.Header.Peek("X-Client-ID")),
	}, metadata.NewRequestID(), nil
}

// extractKey reads the API key from the bearer header or the alternate key
// header and checks the allow-list. Returns the key and a failure message.
func (s *Service) extractKey(ctx *fasthttp.RequestCtx) (string, string) {
	var key string
	if v := string(ctx.Request.Header.Peek(headerAuthorization)); v != "" {
		if !strings.HasPrefix(v, bearerPrefix) {
			return "", "Authorization header is not a bearer token"
		}
		key = strings.TrimSpace(strings.TrimPrefix(v, bearerPrefix))
	} else if v := string(ctx.Request.Header.Peek(headerAPIKey)); v != "" {
		key = v
	}

	if key == "" {
		return "", "missing API key: set Authorization: Bearer <key> or X-API-Key"
	}
	if _, ok := s.apiKeys[key]; !ok {
		return "", "API key is not recognized"
	}
	return key, ""
}

// originAllowed reports whether the origin is on the allow-list. A missing
// origin never reaches here; direct non-browser calls carry none and are
// permitted.
func (s *Service) originAllowed(origin string) bool {
	_, ok := s.allowedOrigins[strings.ToLower(origin)]
	return ok
}

// CORSHeaders writes the CORS response headers: the caller's origin when
// allowed, "*" otherwise.
func (s *Service) CORSHeaders(ctx *fasthttp.RequestCtx) {
	origin := string(ctx.Request.Header.Peek("Origin"))
	allowed := "*"
	if origin != "" && s.originAllowed(origin) {
		allowed = origin
	}
	ctx.Response.Header.Set("Access-Control-Allow-Origin", allowed)
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	ctx.Response.Header.Set("Access-Control-Allow-Headers",
		"Authorization, Content-Type, X-API-Key, X-Client-ID, X-User-ID, X-Signature")
	ctx.Response.Header.Set("Access-Control-Max-Age", "86400")
}

// Preflight answers an OPTIONS request: 403 for a disallowed origin, else
// the CORS header set with no body.
func (s *Service) Preflight(ctx *fasthttp.RequestCtx) {
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin != "" && !s.originAllowed(origin) {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		return
	}
	s.CORSHeaders(ctx)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}
