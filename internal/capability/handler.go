// Package capability implements one handler per capability. A handler knows
// every provider dialect's request and response shape for its capability: it
// builds the provider wire body from a unified request and parses the
// provider's raw response back into the unified shape.
//
// The dialect is read from the resolved ModelConfig, never re-derived from
// the model name. Adding a dialect means extending the switch in each
// handler; the shared plumbing (header assembly, endpoint resolution) lives
// in the adapters.
package capability

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// Handler converts between the unified shape and one capability's provider
// dialects.
type Handler interface {
	Capability() registry.Capability

	// BuildBody constructs the provider wire body for the resolved model's
	// dialect.
	BuildBody(req *unified.Request, model *registry.ModelConfig) ([]byte, error)

	// ParseResponse maps the provider's raw response body back into the
	// unified response. Missing optional fields (usage, ids) are tolerated.
	ParseResponse(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error)
}

var handlers = map[registry.Capability]Handler{
	registry.CapabilityChat:         chatHandler{},
	registry.CapabilityEmbedding:    embeddingHandler{},
	registry.CapabilityImage:        imageHandler{},
	registry.CapabilityVideo:        videoHandler{},
	registry.CapabilityTextToSpeech: speechHandler{},
	registry.CapabilityLiveAudio:    liveAudioHandler{},
}

// For returns the handler for the capability.
func For(c registry.Capability) (Handler, error) {
	h, ok := handlers[c]
	if !ok {
		return nil, fmt.Errorf("no handler for capability %q", c)
	}
	return h, nil
}

var idCounter atomic.Uint64

// synthesizeID mints a response id for providers that omit one. The counter
// keeps two responses in the same millisecond distinguishable; exact
// collision avoidance is not required, only a tracing aid.
func synthesizeID(c registry.Capability) string {
	return fmt.Sprintf("%s-%d-%d", c.IDPrefix(), time.Now().UnixMilli(), idCounter.Add(1))
}

// clampTokens resolves the effective max output tokens: the requested value
// when positive, else the model ceiling, always clamped to [1, max].
func clampTokens(requested, max int) int {
	if max < 1 {
		max = 1
	}
	n := requested
	if n <= 0 {
		n = max
	}
	if n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

// temperatureOf returns the requested temperature or 0 when unset.
func temperatureOf(req *unified.Request) float64 {
	if req.Temperature == nil {
		return 0
	}
	return *req.Temperature
}

// newResponse fills the fields common to every parsed response. The provider
// name is stamped on afterwards by the adapter that owns the call.
func newResponse(id string, req *unified.Request, model *registry.ModelConfig) *unified.Response {
	if id == "" {
		id = synthesizeID(req.Capability)
	}
	return &unified.Response{
		ID:         id,
		Capability: req.Capability,
		Model:      model.Name,
	}
}
