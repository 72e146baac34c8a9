package workers

import (
	"errors"
	"testing"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

func TestAccountScopedBaseURL(t *testing.T) {
	provider, _ := registry.Default().Provider(registry.ProviderWorkers)
	a, err := New(provider, "cf-token", "acc-123")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	g, err := a.BuildRequest(&unified.Request{
		Capability: registry.CapabilityChat,
		Messages:   []unified.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}

	want := "https://api.cloudflare.com/client/v4/accounts/acc-123/ai/run/@cf/meta/llama-3.1-8b-instruct"
	if g.Endpoint != want {
		t.Errorf("Endpoint = %q, want %q", g.Endpoint, want)
	}
	if g.Headers["Authorization"] != "Bearer cf-token" {
		t.Errorf("Authorization = %q", g.Headers["Authorization"])
	}

	// The shared registry entry must not pick up the substitution.
	if provider.BaseURL != "https://api.cloudflare.com/client/v4/accounts/{account}/ai" {
		t.Errorf("shared provider BaseURL mutated: %q", provider.BaseURL)
	}
}

func TestNewRequiresAccount(t *testing.T) {
	provider, _ := registry.Default().Provider(registry.ProviderWorkers)
	var ce *unified.ConfigurationError
	if _, err := New(provider, "cf-token", ""); !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}
