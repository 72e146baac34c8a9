package registry

import "time"

// Provider name constants used across the gateway.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderWorkers   = "workers"
	ProviderMock      = "mock"
)

// Default returns the built-in provider catalog. Costs are hints forwarded to
// the upstream gateway for accounting, not billing truth.
func Default() *Registry {
	return New(OpenAI(), Anthropic(), Google(), Workers(), Mock())
}

// OpenAI is the OpenAI-compatible backend entry.
func OpenAI() ProviderConfig {
	return ProviderConfig{
		Name:         ProviderOpenAI,
		BaseURL:      "https://api.openai.com/v1",
		AuthHeader:   "Authorization",
		DefaultModel: "gpt-4o-mini",
		Models: []ModelConfig{
			{
				Name:         "gpt-4o",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityChat},
				Endpoint:     "/chat/completions",
				MaxTokens:    16384,
				Streaming:    true,
				Cost:         Cost{InputPer1K: 0.0025, OutputPer1K: 0.01},
			},
			{
				Name:         "gpt-4o-mini",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityChat},
				Endpoint:     "/chat/completions",
				MaxTokens:    16384,
				Streaming:    true,
				Cost:         Cost{InputPer1K: 0.00015, OutputPer1K: 0.0006},
			},
			{
				Name:         "text-embedding-3-small",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityEmbedding},
				Endpoint:     "/embeddings",
				MaxTokens:    8191,
				Cost:         Cost{InputPer1K: 0.00002},
				CacheTTL:     24 * time.Hour,
			},
			{
				Name:         "dall-e-3",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityImage},
				Endpoint:     "/images/generations",
				MaxTokens:    1,
				Cost:         Cost{PerImage: 0.04},
				SkipCache:    true,
			},
			{
				Name:         "sora-1",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityVideo},
				Endpoint:     "/videos",
				MaxTokens:    1,
				Cost:         Cost{PerRequest: 0.5},
				SkipCache:    true,
			},
			{
				Name:         "tts-1",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityTextToSpeech},
				Endpoint:     "/audio/speech",
				MaxTokens:    4096,
				Cost:         Cost{InputPer1K: 0.015},
			},
			{
				Name:         "gpt-4o-realtime-preview",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityLiveAudio},
				Endpoint:     "/realtime/sessions",
				MaxTokens:    4096,
				Streaming:    true,
				Cost:         Cost{InputPer1K: 0.005, OutputPer1K: 0.02},
				SkipCache:    true,
			},
		},
	}
}

// Anthropic is the Anthropic messages backend entry.
func Anthropic() ProviderConfig {
	return ProviderConfig{
		Name:         ProviderAnthropic,
		BaseURL:      "https://api.anthropic.com/v1",
		AuthHeader:   "x-api-key",
		DefaultModel: "claude-sonnet-4-5",
		Models: []ModelConfig{
			{
				Name:         "claude-sonnet-4-5",
				Dialect:      DialectAnthropic,
				Capabilities: []Capability{CapabilityChat},
				Endpoint:     "/messages",
				MaxTokens:    8192,
				Streaming:    true,
				Cost:         Cost{InputPer1K: 0.003, OutputPer1K: 0.015},
			},
			{
				Name:         "claude-haiku-4-5",
				Dialect:      DialectAnthropic,
				Capabilities: []Capability{CapabilityChat},
				Endpoint:     "/messages",
				MaxTokens:    8192,
				Streaming:    true,
				Cost:         Cost{InputPer1K: 0.0008, OutputPer1K: 0.004},
			},
		},
	}
}

// Google is the Google generative-API backend entry. Endpoints embed the
// model name, so they are stored as "{model}" templates.
func Google() ProviderConfig {
	return ProviderConfig{
		Name:         ProviderGoogle,
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		AuthHeader:   "x-goog-api-key",
		DefaultModel: "gemini-2.0-flash",
		Models: []ModelConfig{
			{
				Name:         "gemini-2.0-flash",
				Dialect:      DialectGoogle,
				Capabilities: []Capability{CapabilityChat},
				Endpoint:     "/models/{model}:generateContent",
				MaxTokens:    8192,
				Streaming:    true,
				Cost:         Cost{InputPer1K: 0.0001, OutputPer1K: 0.0004},
			},
			{
				Name:         "text-embedding-004",
				Dialect:      DialectGoogle,
				Capabilities: []Capability{CapabilityEmbedding},
				Endpoint:     "/models/{model}:embedContent",
				MaxTokens:    2048,
				CacheTTL:     24 * time.Hour,
			},
			{
				Name:         "imagen-3.0-generate-002",
				Dialect:      DialectGoogle,
				Capabilities: []Capability{CapabilityImage},
				Endpoint:     "/models/{model}:predict",
				MaxTokens:    1,
				Cost:         Cost{PerImage: 0.03},
				SkipCache:    true,
			},
			{
				Name:         "veo-2.0-generate-001",
				Dialect:      DialectGoogle,
				Capabilities: []Capability{CapabilityVideo},
				Endpoint:     "/models/{model}:predictLongRunning",
				MaxTokens:    1,
				Cost:         Cost{PerRequest: 0.35},
				SkipCache:    true,
			},
			{
				Name:         "gemini-2.0-flash-live-001",
				Dialect:      DialectGoogle,
				Capabilities: []Capability{CapabilityLiveAudio},
				Endpoint:     "/models/{model}:connect",
				MaxTokens:    8192,
				Streaming:    true,
				SkipCache:    true,
			},
		},
	}
}

// Workers is the edge-inference backend entry. Its base URL is account-scoped:
// the "{account}" placeholder is substituted by the adapter at construction.
func Workers() ProviderConfig {
	return ProviderConfig{
		Name:         ProviderWorkers,
		BaseURL:      "https://api.cloudflare.com/client/v4/accounts/{account}/ai",
		AuthHeader:   "Authorization",
		DefaultModel: "@cf/meta/llama-3.1-8b-instruct",
		Models: []ModelConfig{
			{
				Name:         "@cf/meta/llama-3.1-8b-instruct",
				Dialect:      DialectEdgeRun,
				Capabilities: []Capability{CapabilityChat},
				Endpoint:     "/run/{model}",
				MaxTokens:    4096,
				Streaming:    true,
				Cost:         Cost{PerRequest: 0.0001},
			},
			{
				Name:         "@cf/baai/bge-base-en-v1.5",
				Dialect:      DialectEdgeRun,
				Capabilities: []Capability{CapabilityEmbedding},
				Endpoint:     "/run/{model}",
				MaxTokens:    512,
				CacheTTL:     24 * time.Hour,
			},
			{
				Name:         "@cf/black-forest-labs/flux-1-schnell",
				Dialect:      DialectEdgeRun,
				Capabilities: []Capability{CapabilityImage},
				Endpoint:     "/run/{model}",
				MaxTokens:    1,
				Cost:         Cost{PerImage: 0.00005},
				SkipCache:    true,
			},
			{
				Name:         "@cf/myshell-ai/melotts",
				Dialect:      DialectEdgeRun,
				Capabilities: []Capability{CapabilityTextToSpeech},
				Endpoint:     "/run/{model}",
				MaxTokens:    4096,
			},
		},
	}
}

// Mock is the synthetic backend used to exercise the gateway without live
// credentials. Its adapter fabricates responses locally; no network call is
// ever made for it.
func Mock() ProviderConfig {
	return ProviderConfig{
		Name:         ProviderMock,
		BaseURL:      "mock://local",
		AuthHeader:   "Authorization",
		DefaultModel: "mock-chat",
		Models: []ModelConfig{
			{
				Name:         "mock-chat",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityChat},
				Endpoint:     "/chat/completions",
				MaxTokens:    4096,
			},
			{
				Name:         "mock-embed",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityEmbedding},
				Endpoint:     "/embeddings",
				MaxTokens:    8191,
				CacheTTL:     24 * time.Hour,
			},
			{
				Name:         "mock-image",
				Dialect:      DialectOpenAI,
				Capabilities: []Capability{CapabilityImage},
				Endpoint:     "/images/generations",
				MaxTokens:    1,
				SkipCache:    true,
			},
		},
	}
}
