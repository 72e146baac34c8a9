// Package mock adapts a synthetic backend that fabricates responses locally.
// It lets the dispatch path run end to end without live credentials: the
// orchestrator detects the Fabricator and skips the upstream call, then maps
// the fabricated body through the normal parsing path.
package mock

import (
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/briefwire/ai-gateway/internal/adapters"
	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// EmbeddingDim is the fixed length of fabricated embedding vectors.
const EmbeddingDim = 1536

// Adapter wraps the shared plumbing and adds local fabrication.
type Adapter struct {
	*adapters.Base
}

// New builds the mock adapter. No credentials are required.
func New(provider *registry.ProviderConfig) (*Adapter, error) {
	base, err := adapters.NewBase(provider, "mock-key")
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base}, nil
}

// Fabricate implements adapters.Fabricator. The body is shaped like the
// OpenAI dialect the mock models are registered with, so MapResponse parses
// it through the same handler path as a real response.
func (a *Adapter) Fabricate(req *unified.Request) ([]byte, error) {
	switch req.Capability {
	case registry.CapabilityChat:
		return fabricateChat(req)
	case registry.CapabilityEmbedding:
		return fabricateEmbedding(req)
	case registry.CapabilityImage:
		return fabricateImage(req)
	default:
		return nil, &unified.CapabilityMismatchError{
			Provider:   a.Name(),
			Capability: req.Capability,
		}
	}
}

func fabricateChat(req *unified.Request) ([]byte, error) {
	last := ""
	for _, m := range req.Messages {
		if m.Role == "user" {
			last = m.Content
		}
	}
	content := fmt.Sprintf("mock response to: %s", last)
	prompt := estimateTokens(last)
	completion := estimateTokens(content)

	return json.Marshal(map[string]any{
		"id":     fmt.Sprintf("chatcmpl-mock-%08x", contentHash(last)),
		"object": "chat.completion",
		"model":  "mock-chat",
		"choices": []map[string]any{{
			"index": 0,
			"message": map[string]string{
				"role":    "assistant",
				"content": content,
			},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	})
}

// fabricateEmbedding returns one deterministic unit-free vector per input.
// The same text always yields the same vector.
func fabricateEmbedding(req *unified.Request) ([]byte, error) {
	data := make([]map[string]any, len(req.Input))
	tokens := 0
	for i, text := range req.Input {
		seed := contentHash(text)
		vec := make([]float64, EmbeddingDim)
		for j := range vec {
			seed = seed*1664525 + 1013904223
			vec[j] = float64(int32(seed)) / float64(1<<31)
		}
		data[i] = map[string]any{"index": i, "embedding": vec, "object": "embedding"}
		tokens += estimateTokens(text)
	}

	return json.Marshal(map[string]any{
		"object": "list",
		"model":  "mock-embed",
		"data":   data,
		"usage": map[string]int{
			"prompt_tokens": tokens,
			"total_tokens":  tokens,
		},
	})
}

func fabricateImage(req *unified.Request) ([]byte, error) {
	return json.Marshal(map[string]any{
		"created": 0,
		"data": []map[string]string{{
			"url": fmt.Sprintf("https://mock.invalid/images/%08x.png", contentHash(req.Prompt)),
		}},
	})
}

func contentHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// estimateTokens approximates token counts for fabricated usage blocks.
func estimateTokens(s string) int {
	return len(s)/4 + 1
}
