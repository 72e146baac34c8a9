package capability

import (
	"encoding/json"
	"fmt"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// liveAudioHandler negotiates real-time audio sessions. The gateway does not
// proxy the media stream itself; it brokers the session handshake and hands
// the caller a session reference plus an ephemeral token to connect with.
type liveAudioHandler struct{}

func (liveAudioHandler) Capability() registry.Capability { return registry.CapabilityLiveAudio }

func (liveAudioHandler) BuildBody(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	switch model.Dialect {
	case registry.DialectGoogle:
		return json.Marshal(map[string]any{
			"setup": map[string]any{
				"model": "models/" + model.Name,
				"generationConfig": map[string]any{
					"responseModalities": []string{"AUDIO"},
				},
			},
		})
	case registry.DialectEdgeRun:
		return json.Marshal(struct {
			Prompt string `json:"prompt,omitempty"`
		}{Prompt: req.Prompt})
	default:
		return buildOpenAILive(req, model)
	}
}

func (liveAudioHandler) ParseResponse(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	switch model.Dialect {
	case registry.DialectGoogle:
		return parseGoogleLive(raw, req, model)
	case registry.DialectEdgeRun:
		return parseEdgeLive(raw, req, model)
	default:
		return parseOpenAILive(raw, req, model)
	}
}

type openaiLiveRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

func buildOpenAILive(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	return json.Marshal(openaiLiveRequest{
		Model: model.Name,
		Voice: req.Voice,
	})
}

func parseOpenAILive(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var lr struct {
		ID           string `json:"id"`
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, fmt.Errorf("live: decode openai response: %w", err)
	}
	if lr.ID == "" {
		return nil, fmt.Errorf("live: openai response has no session id")
	}

	resp := newResponse(lr.ID, req, model)
	resp.Data = []unified.DataItem{{
		SessionID: lr.ID,
		Token:     lr.ClientSecret.Value,
	}}
	return resp, nil
}

func parseGoogleLive(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var gr struct {
		SetupComplete *struct{} `json:"setupComplete"`
		SessionID     string    `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("live: decode google response: %w", err)
	}
	if gr.SetupComplete == nil && gr.SessionID == "" {
		return nil, fmt.Errorf("live: google session setup incomplete")
	}

	resp := newResponse(gr.SessionID, req, model)
	resp.Data = []unified.DataItem{{SessionID: resp.ID}}
	return resp, nil
}

func parseEdgeLive(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var env edgeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("live: decode edge response: %w", err)
	}
	if err := env.err("live"); err != nil {
		return nil, err
	}

	var result struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("live: decode edge result: %w", err)
	}

	resp := newResponse(result.SessionID, req, model)
	resp.Data = []unified.DataItem{{SessionID: resp.ID, Token: result.Token}}
	return resp, nil
}
