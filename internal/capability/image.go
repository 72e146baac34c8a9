package capability

import (
	"encoding/json"
	"fmt"

	openaiSDK "github.com/openai/openai-go/v3"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// imageHandler speaks three image dialects: OpenAI image generations, Google
// Imagen predict, and the edge diffusion form.
type imageHandler struct{}

func (imageHandler) Capability() registry.Capability { return registry.CapabilityImage }

func (imageHandler) BuildBody(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	switch model.Dialect {
	case registry.DialectGoogle:
		return buildGoogleImage(req)
	case registry.DialectEdgeRun:
		return json.Marshal(struct {
			Prompt string `json:"prompt"`
		}{Prompt: req.Prompt})
	default:
		params := openaiSDK.ImageGenerateParams{
			Prompt: req.Prompt,
			Model:  openaiSDK.ImageModel(model.Name),
			N:      openaiSDK.Int(1),
		}
		if req.Size != "" {
			params.Size = openaiSDK.ImageGenerateParamsSize(req.Size)
		}
		if req.Quality != "" {
			params.Quality = openaiSDK.ImageGenerateParamsQuality(req.Quality)
		}
		return json.Marshal(params)
	}
}

func (imageHandler) ParseResponse(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	switch model.Dialect {
	case registry.DialectGoogle:
		return parseGoogleImage(raw, req, model)
	case registry.DialectEdgeRun:
		return parseEdgeImage(raw, req, model)
	default:
		return parseOpenAIImage(raw, req, model)
	}
}

func parseOpenAIImage(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var ir openaiSDK.ImagesResponse
	if err := json.Unmarshal(raw, &ir); err != nil {
		return nil, fmt.Errorf("image: decode openai response: %w", err)
	}

	resp := newResponse("", req, model)
	for i, d := range ir.Data {
		resp.Data = append(resp.Data, unified.DataItem{
			Index: i,
			URL:   d.URL,
			B64:   d.B64JSON,
		})
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image: empty openai response")
	}
	return resp, nil
}

// googlePredictRequest is the Imagen predict envelope. Shared with the video
// handler, which uses the same instances/parameters shape.
type googlePredictRequest struct {
	Instances  []googleInstance `json:"instances"`
	Parameters map[string]any   `json:"parameters,omitempty"`
}

type googleInstance struct {
	Prompt string `json:"prompt"`
}

func buildGoogleImage(req *unified.Request) ([]byte, error) {
	params := map[string]any{"sampleCount": 1}
	if req.Size != "" {
		params["aspectRatio"] = req.Size
	}
	return json.Marshal(googlePredictRequest{
		Instances:  []googleInstance{{Prompt: req.Prompt}},
		Parameters: params,
	})
}

func parseGoogleImage(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var gr struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("image: decode google response: %w", err)
	}
	if len(gr.Predictions) == 0 {
		return nil, fmt.Errorf("image: empty google response")
	}

	resp := newResponse("", req, model)
	for i, p := range gr.Predictions {
		resp.Data = append(resp.Data, unified.DataItem{Index: i, B64: p.BytesBase64Encoded})
	}
	return resp, nil
}

func parseEdgeImage(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var env edgeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("image: decode edge response: %w", err)
	}
	if err := env.err("image"); err != nil {
		return nil, err
	}

	var result struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("image: decode edge result: %w", err)
	}
	if result.Image == "" {
		return nil, fmt.Errorf("image: empty edge response")
	}

	resp := newResponse("", req, model)
	resp.Data = []unified.DataItem{{B64: result.Image}}
	return resp, nil
}
