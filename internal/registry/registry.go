// Package registry holds the static per-provider configuration: base URLs,
// auth header names, default models, and the model catalog with capabilities,
// endpoints, token limits, and cost hints.
//
// A Registry is an explicitly constructed, immutable value. It is built once
// at startup and shared read-only across all concurrent requests — services
// that need catalog data receive the Registry via their constructors rather
// than reading package-level state.
package registry

import (
	"strings"
	"time"
)

// Cost holds the registered cost hints for a model. Zero fields mean the
// provider does not bill on that axis.
type Cost struct {
	// InputPer1K / OutputPer1K are USD per 1000 tokens.
	InputPer1K  float64 `json:"per_token_in,omitempty"`
	OutputPer1K float64 `json:"per_token_out,omitempty"`
	// PerImage is USD per generated image.
	PerImage float64 `json:"per_image,omitempty"`
	// PerRequest is a flat USD cost per call.
	PerRequest float64 `json:"per_request,omitempty"`
}

// IsZero reports whether no cost axis is registered.
func (c Cost) IsZero() bool {
	return c.InputPer1K == 0 && c.OutputPer1K == 0 && c.PerImage == 0 && c.PerRequest == 0
}

// ModelConfig describes one model of a provider. Immutable after catalog
// construction.
type ModelConfig struct {
	// Name is the provider-native model name (e.g. "gpt-4o-mini").
	Name string

	// Dialect is the wire protocol the model speaks.
	Dialect Dialect

	// Capabilities lists every capability the model can serve.
	Capabilities []Capability

	// Endpoint is the provider-relative endpoint path. The "{model}"
	// placeholder, when present, is replaced with the model name.
	Endpoint string

	// MaxTokens is the hard output-token ceiling. Requested token counts are
	// clamped to [1, MaxTokens].
	MaxTokens int

	// Streaming reports whether the model supports streamed responses.
	Streaming bool

	// Cost carries the registered cost hints forwarded upstream.
	Cost Cost

	// CacheTTL, when non-zero, overrides the capability-derived cache TTL.
	CacheTTL time.Duration

	// SkipCache marks responses from this model as never cacheable.
	SkipCache bool
}

// Supports reports whether the model lists the given capability.
func (m *ModelConfig) Supports(c Capability) bool {
	for _, mc := range m.Capabilities {
		if mc == c {
			return true
		}
	}
	return false
}

// EndpointFor expands the endpoint template for this model.
func (m *ModelConfig) EndpointFor() string {
	return strings.ReplaceAll(m.Endpoint, "{model}", m.Name)
}

// ProviderConfig describes one provider backend: its name, base URL, auth
// header, default model, and ordered model list. One instance per provider,
// never mutated at runtime.
type ProviderConfig struct {
	Name       string
	BaseURL    string
	AuthHeader string
	// DefaultModel is the model used when a request names none. It must
	// appear in Models.
	DefaultModel string
	Models       []ModelConfig
}

// Model returns the named model, or nil when the provider does not list it.
func (p *ProviderConfig) Model(name string) *ModelConfig {
	for i := range p.Models {
		if p.Models[i].Name == name {
			return &p.Models[i]
		}
	}
	return nil
}

// DefaultFor returns the model used for the given capability when a request
// names none: the provider default when it supports the capability, otherwise
// the first listed model that does.
func (p *ProviderConfig) DefaultFor(c Capability) *ModelConfig {
	if m := p.Model(p.DefaultModel); m != nil && m.Supports(c) {
		return m
	}
	for i := range p.Models {
		if p.Models[i].Supports(c) {
			return &p.Models[i]
		}
	}
	return nil
}

// Capabilities returns the union of capabilities across the provider's models,
// in first-seen order.
func (p *ProviderConfig) Capabilities() []Capability {
	seen := make(map[Capability]bool)
	var out []Capability
	for i := range p.Models {
		for _, c := range p.Models[i].Capabilities {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Supports reports whether any model of the provider serves the capability.
func (p *ProviderConfig) Supports(c Capability) bool {
	return p.DefaultFor(c) != nil
}

// Registry is the immutable provider catalog. Registration order is preserved
// — it determines fallback order when a request allows multiple providers.
type Registry struct {
	order  []string
	byName map[string]*ProviderConfig
}

// New builds a Registry from the given providers in registration order.
// Later duplicates of a provider name are ignored.
func New(providers ...ProviderConfig) *Registry {
	r := &Registry{byName: make(map[string]*ProviderConfig, len(providers))}
	for i := range providers {
		p := providers[i]
		if _, dup := r.byName[p.Name]; dup {
			continue
		}
		cp := p
		r.byName[p.Name] = &cp
		r.order = append(r.order, p.Name)
	}
	return r
}

// Provider returns the named provider configuration.
func (r *Registry) Provider(name string) (*ProviderConfig, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Capable returns, in registration order, every provider that can serve the
// capability.
func (r *Registry) Capable(c Capability) []*ProviderConfig {
	var out []*ProviderConfig
	for _, name := range r.order {
		if p := r.byName[name]; p.Supports(c) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int { return len(r.order) }
