package registry

import "fmt"

// Capability is a fixed category of AI operation. It determines both the
// unified request shape and which providers are eligible to serve it.
type Capability string

const (
	CapabilityChat         Capability = "chat"
	CapabilityEmbedding    Capability = "embedding"
	CapabilityImage        Capability = "image"
	CapabilityVideo        Capability = "video"
	CapabilityTextToSpeech Capability = "text-to-speech"
	CapabilityLiveAudio    Capability = "live-audio"
)

// capabilityAliases maps accepted alias names onto the canonical capability
// whose request/response semantics they reuse.
var capabilityAliases = map[string]Capability{
	"audio":          CapabilityChat,
	"vision":         CapabilityChat,
	"speech-to-text": CapabilityChat,
	"speech":         CapabilityTextToSpeech,
	"live-video":     CapabilityLiveAudio,
}

// ParseCapability normalizes a capability string from an inbound request.
// Aliases resolve to their canonical capability; unknown values are an error.
func ParseCapability(s string) (Capability, error) {
	switch Capability(s) {
	case CapabilityChat, CapabilityEmbedding, CapabilityImage,
		CapabilityVideo, CapabilityTextToSpeech, CapabilityLiveAudio:
		return Capability(s), nil
	}
	if c, ok := capabilityAliases[s]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// IDPrefix returns the short prefix used when synthesizing response ids for
// providers that omit one.
func (c Capability) IDPrefix() string {
	switch c {
	case CapabilityChat:
		return "chatcmpl"
	case CapabilityEmbedding:
		return "embd"
	case CapabilityImage:
		return "img"
	case CapabilityVideo:
		return "vid"
	case CapabilityTextToSpeech:
		return "tts"
	case CapabilityLiveAudio:
		return "live"
	}
	return "resp"
}

// Dialect identifies the wire protocol a model speaks. It is resolved once
// when the catalog is constructed and stored on the ModelConfig, so request
// building and response parsing never have to re-derive it from the model
// name string.
type Dialect uint8

const (
	// DialectOpenAI is the OpenAI-compatible protocol (chat completions,
	// embeddings, image generations with bearer auth).
	DialectOpenAI Dialect = iota
	// DialectAnthropic is the Anthropic messages protocol (separate system
	// prompt, x-api-key header, version header).
	DialectAnthropic
	// DialectGoogle is the Google generative protocol
	// (generateContent/embedContent keyed by an API-key header).
	DialectGoogle
	// DialectEdgeRun is the edge-inference "run model by slug" protocol,
	// account-scoped in its base path.
	DialectEdgeRun
)

// String returns the dialect name used in logs and metrics labels.
func (d Dialect) String() string {
	switch d {
	case DialectOpenAI:
		return "openai"
	case DialectAnthropic:
		return "anthropic"
	case DialectGoogle:
		return "google"
	case DialectEdgeRun:
		return "edge-run"
	}
	return "unknown"
}
