package openai

import (
	"testing"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

func TestRealtimeBetaHeader(t *testing.T) {
	provider, _ := registry.Default().Provider(registry.ProviderOpenAI)
	a, err := New(provider, "sk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Run("realtime session gets beta header", func(t *testing.T) {
		g, err := a.BuildRequest(&unified.Request{Capability: registry.CapabilityLiveAudio})
		if err != nil {
			t.Fatalf("BuildRequest: %v", err)
		}
		if g.Headers["OpenAI-Beta"] != "realtime=v1" {
			t.Errorf("OpenAI-Beta = %q", g.Headers["OpenAI-Beta"])
		}
	})

	t.Run("chat carries no beta header", func(t *testing.T) {
		g, err := a.BuildRequest(&unified.Request{
			Capability: registry.CapabilityChat,
			Messages:   []unified.Message{{Role: "user", Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("BuildRequest: %v", err)
		}
		if _, present := g.Headers["OpenAI-Beta"]; present {
			t.Error("OpenAI-Beta set on a chat request")
		}
	})
}
