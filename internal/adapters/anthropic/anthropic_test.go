package anthropic

import (
	"testing"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

func TestBuildRequestQuirks(t *testing.T) {
	provider, _ := registry.Default().Provider(registry.ProviderAnthropic)
	a, err := New(provider, "sk-ant-test")
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

	if g.Headers["x-api-key"] != "sk-ant-test" {
		t.Errorf("x-api-key = %q", g.Headers["x-api-key"])
	}
	if g.Headers["anthropic-version"] != apiVersion {
		t.Errorf("anthropic-version = %q", g.Headers["anthropic-version"])
	}
	if g.Endpoint != "https://api.anthropic.com/v1/messages" {
		t.Errorf("Endpoint = %q", g.Endpoint)
	}
}
