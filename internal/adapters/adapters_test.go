package adapters

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

func openaiProvider(t *testing.T) *registry.ProviderConfig {
	t.Helper()
	p, ok := registry.Default().Provider(registry.ProviderOpenAI)
	if !ok {
		t.Fatal("openai missing from catalog")
	}
	return p
}

func chatRequest() *unified.Request {
	return &unified.Request{
		Capability: registry.CapabilityChat,
		Messages:   []unified.Message{{Role: "user", Content: "hello"}},
	}
}

func TestNewBaseRequiresKey(t *testing.T) {
	var ce *unified.ConfigurationError
	if _, err := NewBase(openaiProvider(t), ""); !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestResolveModel(t *testing.T) {
	b, err := NewBase(openaiProvider(t), "sk-test")
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}

	t.Run("explicit model", func(t *testing.T) {
		req := chatRequest()
		req.Model = "gpt-4o"
		m, err := b.ResolveModel(req)
		if err != nil {
			t.Fatalf("ResolveModel: %v", err)
		}
		if m.Name != "gpt-4o" {
			t.Errorf("model = %q", m.Name)
		}
	})

	t.Run("default model for capability", func(t *testing.T) {
		m, err := b.ResolveModel(chatRequest())
		if err != nil {
			t.Fatalf("ResolveModel: %v", err)
		}
		if m.Name != "gpt-4o-mini" {
			t.Errorf("model = %q, want provider default", m.Name)
		}
	})

	t.Run("unknown model", func(t *testing.T) {
		req := chatRequest()
		req.Model = "gpt-99"
		var mnf *unified.ModelNotFoundError
		if _, err := b.ResolveModel(req); !errors.As(err, &mnf) {
			t.Fatalf("err = %v, want ModelNotFoundError", err)
		}
	})

	t.Run("model without the capability", func(t *testing.T) {
		req := chatRequest()
		req.Model = "dall-e-3"
		var cm *unified.CapabilityMismatchError
		if _, err := b.ResolveModel(req); !errors.As(err, &cm) {
			t.Fatalf("err = %v, want CapabilityMismatchError", err)
		}
	})

	t.Run("capability nobody serves", func(t *testing.T) {
		anthropic, _ := registry.Default().Provider(registry.ProviderAnthropic)
		ab, err := NewBase(anthropic, "sk-ant")
		if err != nil {
			t.Fatalf("NewBase: %v", err)
		}
		var cm *unified.CapabilityMismatchError
		if _, err := ab.ResolveModel(&unified.Request{Capability: registry.CapabilityImage, Prompt: "x"}); !errors.As(err, &cm) {
			t.Fatalf("err = %v, want CapabilityMismatchError", err)
		}
	})
}

func TestBuildRequest(t *testing.T) {
	b, err := NewBase(openaiProvider(t), "sk-test")
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}

	g, err := b.BuildRequest(chatRequest())
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}

	if g.Provider != "openai" {
		t.Errorf("Provider = %q", g.Provider)
	}
	if g.Endpoint != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("Endpoint = %q", g.Endpoint)
	}
	if g.Headers["Authorization"] != "Bearer sk-test" {
		t.Errorf("Authorization = %q", g.Headers["Authorization"])
	}
	if g.Headers["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q", g.Headers["Content-Type"])
	}

	var body struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(g.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Model != "gpt-4o-mini" {
		t.Errorf("body model = %q", body.Model)
	}
}

func TestAuthValueForKeyHeader(t *testing.T) {
	// Providers with a dedicated key header carry the raw key, no bearer
	// prefix.
	google, _ := registry.Default().Provider(registry.ProviderGoogle)
	b, err := NewBase(google, "g-key")
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}

	g, err := b.BuildRequest(chatRequest())
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if g.Headers["x-goog-api-key"] != "g-key" {
		t.Errorf("x-goog-api-key = %q", g.Headers["x-goog-api-key"])
	}
	if _, present := g.Headers["Authorization"]; present {
		t.Error("Authorization header set for a key-header provider")
	}
	if g.Endpoint != "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Errorf("Endpoint = %q", g.Endpoint)
	}
}

func TestDecoratorRuns(t *testing.T) {
	called := false
	b, err := NewBase(openaiProvider(t), "sk-test", WithDecorator(
		func(g *unified.GatewayRequest, model *registry.ModelConfig, _ *unified.Request) {
			called = true
			g.Headers["X-Quirk"] = model.Name
		}))
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}

	g, err := b.BuildRequest(chatRequest())
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if !called {
		t.Fatal("decorator never ran")
	}
	if g.Headers["X-Quirk"] != "gpt-4o-mini" {
		t.Errorf("X-Quirk = %q", g.Headers["X-Quirk"])
	}
}

func TestSupportedCapabilities(t *testing.T) {
	b, err := NewBase(openaiProvider(t), "sk-test")
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}

	caps := b.SupportedCapabilities()
	want := map[registry.Capability]bool{
		registry.CapabilityChat:         true,
		registry.CapabilityEmbedding:    true,
		registry.CapabilityImage:        true,
		registry.CapabilityVideo:        true,
		registry.CapabilityTextToSpeech: true,
		registry.CapabilityLiveAudio:    true,
	}
	if len(caps) != len(want) {
		t.Fatalf("capabilities = %v", caps)
	}
	for _, c := range caps {
		if !want[c] {
			t.Errorf("unexpected capability %q", c)
		}
	}

	if name, ok := b.DefaultModel(registry.CapabilityEmbedding); !ok || name != "text-embedding-3-small" {
		t.Errorf("DefaultModel(embedding) = %q, %v", name, ok)
	}
}
