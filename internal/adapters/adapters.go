// Package adapters builds wire-ready sub-requests for each provider backend
// and maps raw backend responses into the unified shape.
//
// The capability-agnostic plumbing (model resolution, endpoint assembly, body
// construction, auth headers) lives in Base. Concrete adapters live in
// sub-packages and only contribute protocol quirks through a decorate hook:
// a version header, a beta header, an account-scoped base path.
package adapters

import (
	"strings"

	"github.com/briefwire/ai-gateway/internal/capability"
	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// Adapter is the per-provider request builder / response mapper.
type Adapter interface {
	Name() string
	SupportedCapabilities() []registry.Capability
	DefaultModel(c registry.Capability) (string, bool)

	// ResolveModel returns the model the adapter would serve this request
	// with: the explicit request model when given, else the provider default
	// for the capability.
	ResolveModel(req *unified.Request) (*registry.ModelConfig, error)

	// BuildRequest resolves the model, builds the dialect body, and
	// assembles the ready-to-send sub-request.
	BuildRequest(req *unified.Request) (*unified.GatewayRequest, error)

	// MapResponse re-resolves the same model and parses the raw backend
	// response. Build and map always agree on the model/dialect pair.
	MapResponse(raw []byte, req *unified.Request) (*unified.Response, error)
}

// Fabricator is implemented by adapters that produce responses locally
// instead of over the network. The orchestrator checks for it before
// dispatching upstream.
type Fabricator interface {
	Fabricate(req *unified.Request) ([]byte, error)
}

// DecorateFunc lets a concrete adapter adjust the assembled sub-request
// after the shared plumbing has run.
type DecorateFunc func(g *unified.GatewayRequest, model *registry.ModelConfig, req *unified.Request)

// Base implements Adapter for any provider described by a registry entry.
type Base struct {
	provider *registry.ProviderConfig
	apiKey   string
	decorate DecorateFunc
}

// Option configures a Base.
type Option func(*Base)

// WithDecorator installs the provider-specific request hook.
func WithDecorator(fn DecorateFunc) Option {
	return func(b *Base) { b.decorate = fn }
}

// NewBase builds an adapter for the given provider entry. A missing API key
// is a construction-time error so misconfiguration never surfaces as a
// per-request failure.
func NewBase(provider *registry.ProviderConfig, apiKey string, opts ...Option) (*Base, error) {
	if apiKey == "" {
		return nil, &unified.ConfigurationError{
			Component: provider.Name,
			Reason:    "no API key configured",
		}
	}
	b := &Base{provider: provider, apiKey: apiKey}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *Base) Name() string { return b.provider.Name }

func (b *Base) SupportedCapabilities() []registry.Capability {
	return b.provider.Capabilities()
}

func (b *Base) DefaultModel(c registry.Capability) (string, bool) {
	m := b.provider.DefaultFor(c)
	if m == nil {
		return "", false
	}
	return m.Name, true
}

// ResolveModel applies the resolution order shared by BuildRequest and
// MapResponse: the explicit request model when given, else the provider
// default for the capability.
func (b *Base) ResolveModel(req *unified.Request) (*registry.ModelConfig, error) {
	if req.Model != "" {
		m := b.provider.Model(req.Model)
		if m == nil {
			return nil, &unified.ModelNotFoundError{Provider: b.provider.Name, Model: req.Model}
		}
		if !m.Supports(req.Capability) {
			return nil, &unified.CapabilityMismatchError{
				Provider:   b.provider.Name,
				Model:      m.Name,
				Capability: req.Capability,
			}
		}
		return m, nil
	}

	m := b.provider.DefaultFor(req.Capability)
	if m == nil {
		return nil, &unified.CapabilityMismatchError{
			Provider:   b.provider.Name,
			Capability: req.Capability,
		}
	}
	return m, nil
}

func (b *Base) BuildRequest(req *unified.Request) (*unified.GatewayRequest, error) {
	model, err := b.ResolveModel(req)
	if err != nil {
		return nil, err
	}

	h, err := capability.For(req.Capability)
	if err != nil {
		return nil, err
	}
	body, err := h.BuildBody(req, model)
	if err != nil {
		return nil, err
	}

	g := &unified.GatewayRequest{
		Provider: b.provider.Name,
		Endpoint: strings.TrimRight(b.provider.BaseURL, "/") + model.EndpointFor(),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: body,
	}
	g.Headers[b.provider.AuthHeader] = b.authValue()

	if b.decorate != nil {
		b.decorate(g, model, req)
	}
	return g, nil
}

func (b *Base) MapResponse(raw []byte, req *unified.Request) (*unified.Response, error) {
	model, err := b.ResolveModel(req)
	if err != nil {
		return nil, err
	}
	h, err := capability.For(req.Capability)
	if err != nil {
		return nil, err
	}
	resp, err := h.ParseResponse(raw, req, model)
	if err != nil {
		return nil, err
	}
	resp.Provider = b.provider.Name
	return resp, nil
}

// authValue renders the credential for the provider's auth header. The
// standard Authorization header carries a bearer token; provider-specific
// key headers carry the raw key.
func (b *Base) authValue() string {
	if b.provider.AuthHeader == "Authorization" {
		return "Bearer " + b.apiKey
	}
	return b.apiKey
}
