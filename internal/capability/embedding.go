package capability

import (
	"encoding/json"
	"fmt"

	openaiSDK "github.com/openai/openai-go/v3"
	"google.golang.org/genai"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// embeddingHandler speaks three embedding dialects: OpenAI /embeddings,
// Google embedContent, and the edge text-batch form.
type embeddingHandler struct{}

func (embeddingHandler) Capability() registry.Capability { return registry.CapabilityEmbedding }

func (embeddingHandler) BuildBody(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	switch model.Dialect {
	case registry.DialectGoogle:
		return buildGoogleEmbedding(req)
	case registry.DialectEdgeRun:
		return json.Marshal(struct {
			Text []string `json:"text"`
		}{Text: req.Input})
	default:
		params := openaiSDK.EmbeddingNewParams{
			Model: openaiSDK.EmbeddingModel(model.Name),
			Input: openaiSDK.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: req.Input,
			},
		}
		return json.Marshal(params)
	}
}

func (embeddingHandler) ParseResponse(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	switch model.Dialect {
	case registry.DialectGoogle:
		return parseGoogleEmbedding(raw, req, model)
	case registry.DialectEdgeRun:
		return parseEdgeEmbedding(raw, req, model)
	default:
		return parseOpenAIEmbedding(raw, req, model)
	}
}

func parseOpenAIEmbedding(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var er openaiSDK.CreateEmbeddingResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, fmt.Errorf("embedding: decode openai response: %w", err)
	}

	resp := newResponse("", req, model)
	for _, d := range er.Data {
		resp.Data = append(resp.Data, unified.DataItem{
			Index:     int(d.Index),
			Embedding: d.Embedding,
		})
	}
	if er.Usage.PromptTokens > 0 || er.Usage.TotalTokens > 0 {
		resp.Usage = &unified.Usage{
			PromptTokens: int(er.Usage.PromptTokens),
			TotalTokens:  int(er.Usage.TotalTokens),
		}
	}
	return resp, nil
}

// buildGoogleEmbedding sends one embedContent call. The endpoint embeds a
// single content, so multiple inputs are joined into one.
func buildGoogleEmbedding(req *unified.Request) ([]byte, error) {
	text := req.Input[0]
	for _, more := range req.Input[1:] {
		text += "\n" + more
	}
	return json.Marshal(struct {
		Content *genai.Content `json:"content"`
	}{Content: genai.NewContentFromText(text, genai.RoleUser)})
}

func parseGoogleEmbedding(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var gr struct {
		Embedding struct {
			Values []float64 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("embedding: decode google response: %w", err)
	}
	if len(gr.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embedding: empty google response")
	}

	resp := newResponse("", req, model)
	resp.Data = []unified.DataItem{{Embedding: gr.Embedding.Values}}
	return resp, nil
}

func parseEdgeEmbedding(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var env edgeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("embedding: decode edge response: %w", err)
	}
	if err := env.err("embedding"); err != nil {
		return nil, err
	}

	var result struct {
		Shape []int       `json:"shape"`
		Data  [][]float64 `json:"data"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("embedding: decode edge result: %w", err)
	}

	resp := newResponse("", req, model)
	for i, vec := range result.Data {
		resp.Data = append(resp.Data, unified.DataItem{Index: i, Embedding: vec})
	}
	return resp, nil
}
