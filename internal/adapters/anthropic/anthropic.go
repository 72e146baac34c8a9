// Package anthropic adapts the Anthropic messages backend: x-api-key auth
// plus the mandatory version header.
package anthropic

import (
	"github.com/briefwire/ai-gateway/internal/adapters"
	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

const apiVersion = "2023-06-01"

// New builds the Anthropic adapter.
func New(provider *registry.ProviderConfig, apiKey string) (*adapters.Base, error) {
	return adapters.NewBase(provider, apiKey, adapters.WithDecorator(decorate))
}

func decorate(g *unified.GatewayRequest, _ *registry.ModelConfig, _ *unified.Request) {
	g.Headers["anthropic-version"] = apiVersion
}
