// Package openai adapts the OpenAI-compatible backend. The shared plumbing
// covers everything except the realtime-session beta header.
package openai

import (
	"strings"

	"github.com/briefwire/ai-gateway/internal/adapters"
	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// New builds the OpenAI adapter.
func New(provider *registry.ProviderConfig, apiKey string) (*adapters.Base, error) {
	return adapters.NewBase(provider, apiKey, adapters.WithDecorator(decorate))
}

func decorate(g *unified.GatewayRequest, model *registry.ModelConfig, _ *unified.Request) {
	// Realtime session minting is still gated behind a beta header.
	if strings.Contains(g.Endpoint, "/realtime/") {
		g.Headers["OpenAI-Beta"] = "realtime=v1"
	}
}
