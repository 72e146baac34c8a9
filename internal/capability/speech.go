package capability

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// speechHandler speaks three text-to-speech dialects: OpenAI audio/speech,
// the edge TTS form, and a Google audio-modality generateContent form.
type speechHandler struct{}

func (speechHandler) Capability() registry.Capability { return registry.CapabilityTextToSpeech }

func (speechHandler) BuildBody(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	text := req.SpeechText()
	switch model.Dialect {
	case registry.DialectEdgeRun:
		return json.Marshal(struct {
			Prompt string `json:"prompt"`
			Lang   string `json:"lang,omitempty"`
		}{Prompt: text, Lang: req.Format})
	case registry.DialectGoogle:
		return buildGoogleSpeech(req, text)
	default:
		return buildOpenAISpeech(req, model, text)
	}
}

func (speechHandler) ParseResponse(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	switch model.Dialect {
	case registry.DialectEdgeRun:
		return parseEdgeSpeech(raw, req, model)
	case registry.DialectGoogle:
		return parseGoogleSpeech(raw, req, model)
	default:
		return parseOpenAISpeech(raw, req, model)
	}
}

type openaiSpeechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

func buildOpenAISpeech(req *unified.Request, model *registry.ModelConfig, text string) ([]byte, error) {
	voice := req.Voice
	if voice == "" {
		voice = "alloy"
	}
	return json.Marshal(openaiSpeechRequest{
		Model:          model.Name,
		Input:          text,
		Voice:          voice,
		ResponseFormat: req.Format,
	})
}

// parseOpenAISpeech handles both shapes the endpoint produces: raw audio
// bytes, or a JSON error-free envelope when the upstream re-wraps it.
func parseOpenAISpeech(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("speech: empty response")
	}

	resp := newResponse("", req, model)
	if raw[0] == '{' {
		var jr struct {
			Audio string `json:"audio"`
		}
		if err := json.Unmarshal(raw, &jr); err == nil && jr.Audio != "" {
			resp.Data = []unified.DataItem{{Audio: jr.Audio}}
			return resp, nil
		}
	}
	resp.Data = []unified.DataItem{{Audio: base64.StdEncoding.EncodeToString(raw)}}
	return resp, nil
}

func buildGoogleSpeech(req *unified.Request, text string) ([]byte, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": text}}},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
		},
	}
	if req.Voice != "" {
		body["generationConfig"].(map[string]any)["speechConfig"] = map[string]any{
			"voiceConfig": map[string]any{
				"prebuiltVoiceConfig": map[string]string{"voiceName": req.Voice},
			},
		}
	}
	return json.Marshal(body)
}

func parseGoogleSpeech(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var gr struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					InlineData struct {
						Data string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("speech: decode google response: %w", err)
	}

	resp := newResponse("", req, model)
	for _, c := range gr.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData.Data != "" {
				resp.Data = append(resp.Data, unified.DataItem{Audio: p.InlineData.Data})
			}
		}
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("speech: google response has no audio")
	}
	return resp, nil
}

func parseEdgeSpeech(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var env edgeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("speech: decode edge response: %w", err)
	}
	if err := env.err("speech"); err != nil {
		return nil, err
	}

	var result struct {
		Audio string `json:"audio"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("speech: decode edge result: %w", err)
	}
	if result.Audio == "" {
		return nil, fmt.Errorf("speech: empty edge response")
	}

	resp := newResponse("", req, model)
	resp.Data = []unified.DataItem{{Audio: result.Audio}}
	return resp, nil
}
