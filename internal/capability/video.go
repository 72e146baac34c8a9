package capability

import (
	"encoding/json"
	"fmt"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// videoHandler speaks three video dialects: OpenAI video jobs, Google Veo
// long-running predict, and a generic edge prompt form. Video generation is
// asynchronous everywhere, so responses carry a job reference and status
// rather than finished bytes.
type videoHandler struct{}

func (videoHandler) Capability() registry.Capability { return registry.CapabilityVideo }

func (videoHandler) BuildBody(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	switch model.Dialect {
	case registry.DialectGoogle:
		return buildGoogleVideo(req)
	case registry.DialectEdgeRun:
		return json.Marshal(struct {
			Prompt string `json:"prompt"`
		}{Prompt: req.Prompt})
	default:
		return buildOpenAIVideo(req, model)
	}
}

func (videoHandler) ParseResponse(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	switch model.Dialect {
	case registry.DialectGoogle:
		return parseGoogleVideo(raw, req, model)
	case registry.DialectEdgeRun:
		return parseEdgeVideo(raw, req, model)
	default:
		return parseOpenAIVideo(raw, req, model)
	}
}

type openaiVideoRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Seconds int    `json:"seconds,omitempty"`
	Size    string `json:"size,omitempty"`
}

func buildOpenAIVideo(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	return json.Marshal(openaiVideoRequest{
		Model:   model.Name,
		Prompt:  req.Prompt,
		Seconds: req.Duration,
		Size:    req.Size,
	})
}

func parseOpenAIVideo(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var vr struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(raw, &vr); err != nil {
		return nil, fmt.Errorf("video: decode openai response: %w", err)
	}

	resp := newResponse(vr.ID, req, model)
	resp.Data = []unified.DataItem{{URL: vr.URL, Status: vr.Status}}
	return resp, nil
}

func buildGoogleVideo(req *unified.Request) ([]byte, error) {
	params := map[string]any{}
	if req.Duration > 0 {
		params["durationSeconds"] = req.Duration
	}
	if req.Size != "" {
		params["aspectRatio"] = req.Size
	}
	return json.Marshal(googlePredictRequest{
		Instances:  []googleInstance{{Prompt: req.Prompt}},
		Parameters: params,
	})
}

// parseGoogleVideo maps a long-running operation reply. The operation name is
// the job reference the caller polls.
func parseGoogleVideo(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var gr struct {
		Name string `json:"name"`
		Done bool   `json:"done"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("video: decode google response: %w", err)
	}
	if gr.Name == "" {
		return nil, fmt.Errorf("video: google response has no operation name")
	}

	status := "pending"
	if gr.Done {
		status = "completed"
	}
	resp := newResponse(gr.Name, req, model)
	resp.Data = []unified.DataItem{{Status: status}}
	return resp, nil
}

func parseEdgeVideo(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var env edgeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("video: decode edge response: %w", err)
	}
	if err := env.err("video"); err != nil {
		return nil, err
	}

	var result struct {
		Video string `json:"video"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("video: decode edge result: %w", err)
	}

	resp := newResponse("", req, model)
	resp.Data = []unified.DataItem{{B64: result.Video, Status: "completed"}}
	return resp, nil
}
