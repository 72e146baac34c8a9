// Package google adapts the Google generative-API backend. The model name is
// embedded in the endpoint path and auth rides the x-goog-api-key header, so
// the shared plumbing needs no extra decoration.
package google

import (
	"github.com/briefwire/ai-gateway/internal/adapters"
	"github.com/briefwire/ai-gateway/internal/registry"
)

// New builds the Google adapter.
func New(provider *registry.ProviderConfig, apiKey string) (*adapters.Base, error) {
	return adapters.NewBase(provider, apiKey)
}
