// Package unified defines the stable request/response contract callers see,
// plus the wire-ready sub-request shape sent to the upstream multi-provider
// gateway. These types are shared by every component; they carry no behavior
// beyond validation and JSON mapping.
package unified

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briefwire/ai-gateway/internal/metadata"
	"github.com/briefwire/ai-gateway/internal/registry"
)

type (
	// Message is one conversation turn of a chat-capability request.
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	// Auth carries the credentials resolved by the authentication layer for
	// this request. Never serialized.
	Auth struct {
		APIKey    string `json:"-"`
		ClientID  string `json:"-"`
		Origin    string `json:"-"`
		Signature string `json:"-"`
	}

	// Request is the unified inbound request. The Capability field is set
	// (normalized from RawCapability) before any adapter or handler logic
	// runs.
	Request struct {
		// RawCapability is the capability string as the caller sent it,
		// aliases included.
		RawCapability string `json:"capability"`

		// Capability is the normalized capability. Populated by Normalize.
		Capability registry.Capability `json:"-"`

		// Provider / Model, when set, pin the request to a specific backend.
		Provider string `json:"provider,omitempty"`
		Model    string `json:"model,omitempty"`

		// Chat payload.
		Messages []Message `json:"messages,omitempty"`
		System   string    `json:"system,omitempty"`

		// Embedding payload. Input accepts a single string or an array.
		Input StringList `json:"input,omitempty"`

		// Image / video / speech payload.
		Prompt  string `json:"prompt,omitempty"`
		Size    string `json:"size,omitempty"`
		Quality string `json:"quality,omitempty"`
		Voice   string `json:"voice,omitempty"`
		Format  string `json:"format,omitempty"`

		// Duration is the requested clip length in seconds (video only).
		Duration int `json:"duration,omitempty"`

		Temperature *float64 `json:"temperature,omitempty"`
		MaxTokens   int      `json:"max_tokens,omitempty"`
		Stream      bool     `json:"stream,omitempty"`
		Fallback    bool     `json:"fallback,omitempty"`

		// CacheTTL, when positive, overrides the derived upstream cache TTL
		// (seconds).
		CacheTTL int `json:"cache_ttl,omitempty"`

		// CostOverride replaces individual registered cost axes.
		CostOverride map[string]float64 `json:"cost_override,omitempty"`

		Metadata *metadata.RequestMetadata `json:"-"`
		Auth     *Auth                     `json:"-"`
	}

	// GatewayRequest is one wire-ready sub-request of the upstream batch.
	// Built fresh per call, never cached.
	GatewayRequest struct {
		Provider string            `json:"provider"`
		Endpoint string            `json:"endpoint"`
		Headers  map[string]string `json:"headers"`
		Body     []byte            `json:"-"`
		Query    map[string]string `json:"query,omitempty"`
	}

	// Usage is the token accounting block. Providers that do not report usage
	// leave it nil on the response.
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	}

	// Choice is one chat completion alternative.
	Choice struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason,omitempty"`
	}

	// DataItem is one element of the data array for embedding, image, video,
	// and audio responses. Exactly one payload field is set per capability.
	DataItem struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding,omitempty"`
		URL       string    `json:"url,omitempty"`
		B64       string    `json:"b64_json,omitempty"`
		Audio     string    `json:"audio,omitempty"`
		SessionID string    `json:"session_id,omitempty"`
		Token     string    `json:"token,omitempty"`
		Status    string    `json:"status,omitempty"`
	}

	// Response is the unified response returned to callers.
	Response struct {
		ID         string              `json:"id"`
		Capability registry.Capability `json:"capability"`
		Provider   string              `json:"provider"`
		Model      string              `json:"model"`

		Choices []Choice   `json:"choices,omitempty"`
		Data    []DataItem `json:"data,omitempty"`

		Usage  *Usage `json:"usage,omitempty"`
		Cached bool   `json:"cached"`

		Metadata     *metadata.RequestMetadata `json:"metadata,omitempty"`
		ProcessingMs int64                     `json:"processing_ms"`
	}
)

// StringList unmarshals either a JSON string or an array of strings.
type StringList []string

// UnmarshalJSON accepts "text" and ["a","b"] forms.
func (s *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = StringList(many)
	return nil
}

// Normalize resolves the capability tag and checks the payload has the
// minimum shape for it. Must be called before any adapter or handler logic.
func (r *Request) Normalize() error {
	if r.RawCapability == "" {
		return &ValidationError{Field: "capability", Reason: "capability is required"}
	}
	c, err := registry.ParseCapability(r.RawCapability)
	if err != nil {
		return &ValidationError{Field: "capability", Reason: err.Error()}
	}
	r.Capability = c

	switch c {
	case registry.CapabilityChat:
		if len(r.Messages) == 0 {
			return &ValidationError{Field: "messages", Reason: "chat requires at least one message"}
		}
		for i, m := range r.Messages {
			if m.Role == "" {
				return &ValidationError{Field: "messages", Reason: fmt.Sprintf("message %d has no role", i)}
			}
		}
	case registry.CapabilityEmbedding:
		if len(r.Input) == 0 {
			return &ValidationError{Field: "input", Reason: "embedding requires input text"}
		}
	case registry.CapabilityImage, registry.CapabilityVideo:
		if r.Prompt == "" {
			return &ValidationError{Field: "prompt", Reason: "prompt is required"}
		}
	case registry.CapabilityTextToSpeech:
		if r.Prompt == "" && len(r.Input) == 0 {
			return &ValidationError{Field: "input", Reason: "speech requires input text"}
		}
	case registry.CapabilityLiveAudio:
		// Session setup carries no required payload.
	}

	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return &ValidationError{Field: "temperature", Reason: "temperature must be in [0, 2]"}
	}
	return nil
}

// SpeechText returns the text to synthesize for a speech request, whichever
// field the caller used.
func (r *Request) SpeechText() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	if len(r.Input) > 0 {
		return r.Input[0]
	}
	return ""
}
