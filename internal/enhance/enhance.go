// Package enhance derives the cache-control, cost-accounting, and metadata
// headers attached to each upstream sub-request. Everything here is pure
// computation over the request and the resolved model; the upstream client
// adds the gateway-level auth header itself.
package enhance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// Upstream gateway header names.
const (
	HeaderCacheTTL       = "cf-aig-cache-ttl"
	HeaderCacheKey       = "cf-aig-cache-key"
	HeaderSkipCache      = "cf-aig-skip-cache"
	HeaderCacheNamespace = "cf-aig-cache-namespace"
	HeaderCustomCost     = "cf-aig-custom-cost"
	HeaderMetadata       = "cf-aig-metadata"
	HeaderCollectMetrics = "cf-aig-collect-metrics"
	HeaderCollectLogs    = "cf-aig-collect-logs"
)

// cacheKeyHexLen is the truncated hex length of derived cache keys.
const cacheKeyHexLen = 16

// Capability-keyed TTL defaults. Embeddings are deterministic and cache
// longest; image, video, and live sessions are never cached.
const (
	ttlEmbedding    = 24 * time.Hour
	ttlChat         = time.Hour
	ttlChatCreative = 5 * time.Minute
	ttlChatStable   = 6 * time.Hour
	ttlSpeech       = time.Hour
)

// Service computes per-sub-request enhancement headers.
type Service struct {
	defaultTTL time.Duration
	namespace  string
}

// NewService builds the enhancement service. defaultTTL, when positive, sits
// between an explicit request override and the capability defaults.
func NewService(defaultTTL time.Duration, namespace string) *Service {
	return &Service{defaultTTL: defaultTTL, namespace: namespace}
}

// TTLFor resolves the cache TTL: request override, then model hint, then the
// environment default, then the capability default. Zero means never cache.
func (s *Service) TTLFor(req *unified.Request, model *registry.ModelConfig) time.Duration {
	if model.SkipCache {
		return 0
	}
	if req.CacheTTL > 0 {
		return time.Duration(req.CacheTTL) * time.Second
	}
	if model.CacheTTL > 0 {
		return model.CacheTTL
	}
	if s.defaultTTL > 0 {
		return s.defaultTTL
	}
	return capabilityTTL(req)
}

func capabilityTTL(req *unified.Request) time.Duration {
	switch req.Capability {
	case registry.CapabilityEmbedding:
		return ttlEmbedding
	case registry.CapabilityChat:
		// High temperature means the caller wants variety; a cached reply
		// defeats that. Near-zero temperature is effectively deterministic.
		if req.Temperature != nil {
			switch {
			case *req.Temperature >= 0.7:
				return ttlChatCreative
			case *req.Temperature < 0.1:
				return ttlChatStable
			}
		}
		return ttlChat
	case registry.CapabilityTextToSpeech:
		if req.Stream {
			return 0
		}
		return ttlSpeech
	default:
		// image, video, live-audio
		return 0
	}
}

// CacheKey derives the stable content key: a truncated sha256 over
// capability, model, temperature, max tokens, and the capability-specific
// payload fingerprint.
func (s *Service) CacheKey(req *unified.Request, model *registry.ModelConfig) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%g|%d|%s",
		req.Capability, model.Name, temperatureOf(req), req.MaxTokens, payloadFingerprint(req))
	return hex.EncodeToString(h.Sum(nil))[:cacheKeyHexLen]
}

func temperatureOf(req *unified.Request) float64 {
	if req.Temperature == nil {
		return 0
	}
	return *req.Temperature
}

func payloadFingerprint(req *unified.Request) string {
	switch req.Capability {
	case registry.CapabilityChat:
		parts := make([]string, 0, len(req.Messages)+1)
		if req.System != "" {
			parts = append(parts, "system:"+req.System)
		}
		for _, m := range req.Messages {
			parts = append(parts, m.Role+":"+m.Content)
		}
		return strings.Join(parts, "\x1f")
	case registry.CapabilityEmbedding:
		return strings.Join(req.Input, "\x1f")
	case registry.CapabilityImage, registry.CapabilityVideo:
		return strings.Join([]string{req.Prompt, req.Size, req.Quality, strconv.Itoa(req.Duration)}, "\x1f")
	case registry.CapabilityTextToSpeech:
		return strings.Join([]string{req.SpeechText(), req.Voice, req.Format}, "\x1f")
	default:
		return req.Model
	}
}

// CostValue merges caller overrides onto the model's registered costs. Keys
// follow the upstream cost header contract.
func (s *Service) CostValue(req *unified.Request, model *registry.ModelConfig) map[string]float64 {
	out := make(map[string]float64, 4)
	if model.Cost.InputPer1K > 0 {
		out["per_token_in"] = model.Cost.InputPer1K / 1000
	}
	if model.Cost.OutputPer1K > 0 {
		out["per_token_out"] = model.Cost.OutputPer1K / 1000
	}
	if model.Cost.PerImage > 0 {
		out["per_image"] = model.Cost.PerImage
	}
	if model.Cost.PerRequest > 0 {
		out["per_request"] = model.Cost.PerRequest
	}
	for k, v := range req.CostOverride {
		out[k] = v
	}
	return out
}

// Apply attaches the enhancement headers to a built sub-request. Headers are
// merged on top of the adapter's own; an existing key is never replaced.
func (s *Service) Apply(g *unified.GatewayRequest, req *unified.Request, model *registry.ModelConfig) error {
	set := func(name, value string) {
		if _, exists := g.Headers[name]; !exists {
			g.Headers[name] = value
		}
	}

	ttl := s.TTLFor(req, model)
	if ttl > 0 {
		set(HeaderCacheTTL, strconv.Itoa(int(ttl.Seconds())))
		set(HeaderCacheKey, s.CacheKey(req, model))
		if s.namespace != "" {
			set(HeaderCacheNamespace, s.namespace)
		}
	} else {
		set(HeaderSkipCache, "true")
	}

	if cost := s.CostValue(req, model); len(cost) > 0 {
		encoded, err := json.Marshal(cost)
		if err != nil {
			return fmt.Errorf("enhance: encode cost header: %w", err)
		}
		set(HeaderCustomCost, string(encoded))
	}

	meta := map[string]string{
		"capability": string(req.Capability),
		"provider":   g.Provider,
		"model":      model.Name,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if req.Metadata != nil {
		meta["requestId"] = req.Metadata.RequestID
		for k, v := range req.Metadata.Custom {
			meta[k] = v
		}
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("enhance: encode metadata header: %w", err)
	}
	set(HeaderMetadata, string(encoded))

	set(HeaderCollectMetrics, "true")
	set(HeaderCollectLogs, "true")
	return nil
}
