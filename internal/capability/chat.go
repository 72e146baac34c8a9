package capability

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openaiSDK "github.com/openai/openai-go/v3"
	"google.golang.org/genai"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// chatHandler speaks four chat dialects: OpenAI-compatible messages,
// Anthropic messages with a separate system prompt, Google generateContent,
// and the edge run-by-slug form.
type chatHandler struct{}

func (chatHandler) Capability() registry.Capability { return registry.CapabilityChat }

func (chatHandler) BuildBody(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	switch model.Dialect {
	case registry.DialectAnthropic:
		return buildAnthropicChat(req, model)
	case registry.DialectGoogle:
		return buildGoogleChat(req, model)
	case registry.DialectEdgeRun:
		return buildEdgeChat(req, model)
	default:
		return buildOpenAIChat(req, model)
	}
}

func (chatHandler) ParseResponse(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	switch model.Dialect {
	case registry.DialectAnthropic:
		return parseAnthropicChat(raw, req, model)
	case registry.DialectGoogle:
		return parseGoogleChat(raw, req, model)
	case registry.DialectEdgeRun:
		return parseEdgeChat(raw, req, model)
	default:
		return parseOpenAIChat(raw, req, model)
	}
}

func buildOpenAIChat(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	msgs := make([]openaiSDK.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openaiSDK.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		msgs = append(msgs, toOpenAIMessage(m.Role, m.Content))
	}

	params := openaiSDK.ChatCompletionNewParams{
		Messages:            msgs,
		Model:               model.Name,
		MaxCompletionTokens: openaiSDK.Int(int64(clampTokens(req.MaxTokens, model.MaxTokens))),
	}
	if req.Temperature != nil {
		params.Temperature = openaiSDK.Float(*req.Temperature)
	}
	if req.Stream && model.Streaming {
		params.StreamOptions = openaiSDK.ChatCompletionStreamOptionsParam{
			IncludeUsage: openaiSDK.Bool(true),
		}
	}
	return json.Marshal(params)
}

func toOpenAIMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch strings.ToLower(role) {
	case "developer":
		return openaiSDK.DeveloperMessage(content)
	case "system":
		return openaiSDK.SystemMessage(content)
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	default:
		return openaiSDK.UserMessage(content)
	}
}

func parseOpenAIChat(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var cc openaiSDK.ChatCompletion
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("chat: decode openai response: %w", err)
	}

	resp := newResponse(cc.ID, req, model)
	for i, ch := range cc.Choices {
		resp.Choices = append(resp.Choices, unified.Choice{
			Index:        i,
			Message:      unified.Message{Role: "assistant", Content: ch.Message.Content},
			FinishReason: ch.FinishReason,
		})
	}
	if cc.Usage.TotalTokens > 0 || cc.Usage.PromptTokens > 0 {
		resp.Usage = &unified.Usage{
			PromptTokens:     int(cc.Usage.PromptTokens),
			CompletionTokens: int(cc.Usage.CompletionTokens),
			TotalTokens:      int(cc.Usage.TotalTokens),
		}
	}
	return resp, nil
}

func buildAnthropicChat(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	systemPrompt := req.System
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system", "developer":
			if systemPrompt != "" {
				systemPrompt += "\n"
			}
			systemPrompt += m.Content
		default:
			msgs = append(msgs, toAnthropicMessage(m.Role, m.Content))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model.Name),
		MaxTokens: int64(clampTokens(req.MaxTokens, model.MaxTokens)),
		Messages:  msgs,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return json.Marshal(params)
}

func toAnthropicMessage(role, content string) anthropic.MessageParam {
	anthRole := anthropic.MessageParamRoleUser
	if strings.ToLower(role) == "assistant" {
		anthRole = anthropic.MessageParamRoleAssistant
	}
	return anthropic.MessageParam{
		Role: anthRole,
		Content: []anthropic.ContentBlockParamUnion{
			{OfText: &anthropic.TextBlockParam{Text: content}},
		},
	}
}

// anthropicChatResponse mirrors the messages API response. Decoded by hand
// because only text blocks and usage matter here.
type anthropicChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseAnthropicChat(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var ar anthropicChatResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, fmt.Errorf("chat: decode anthropic response: %w", err)
	}

	var sb strings.Builder
	for _, b := range ar.Content {
		if b.Type == "text" || b.Type == "" {
			sb.WriteString(b.Text)
		}
	}

	resp := newResponse(ar.ID, req, model)
	resp.Choices = []unified.Choice{{
		Message:      unified.Message{Role: "assistant", Content: sb.String()},
		FinishReason: mapAnthropicStop(ar.StopReason),
	}}
	if ar.Usage.InputTokens > 0 || ar.Usage.OutputTokens > 0 {
		resp.Usage = &unified.Usage{
			PromptTokens:     ar.Usage.InputTokens,
			CompletionTokens: ar.Usage.OutputTokens,
			TotalTokens:      ar.Usage.InputTokens + ar.Usage.OutputTokens,
		}
	}
	return resp, nil
}

func mapAnthropicStop(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}

// googleGenRequest is the generateContent request envelope. Contents reuse
// the SDK's Content/Part types so the part encoding stays canonical.
type googleGenRequest struct {
	Contents          []*genai.Content `json:"contents"`
	SystemInstruction *genai.Content   `json:"systemInstruction,omitempty"`
	GenerationConfig  *googleGenConfig `json:"generationConfig,omitempty"`
}

type googleGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

func buildGoogleChat(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	systemPrompt := req.System
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system", "developer":
			if systemPrompt != "" {
				systemPrompt += "\n"
			}
			systemPrompt += m.Content
		case "assistant", "model":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	body := googleGenRequest{
		Contents: contents,
		GenerationConfig: &googleGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: clampTokens(req.MaxTokens, model.MaxTokens),
		},
	}
	if systemPrompt != "" {
		body.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}
	return json.Marshal(body)
}

func parseGoogleChat(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var gr genai.GenerateContentResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("chat: decode google response: %w", err)
	}

	resp := newResponse(gr.ResponseID, req, model)
	for i, cand := range gr.Candidates {
		if cand == nil {
			continue
		}
		var sb strings.Builder
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if p != nil {
					sb.WriteString(p.Text)
				}
			}
		}
		resp.Choices = append(resp.Choices, unified.Choice{
			Index:        i,
			Message:      unified.Message{Role: "assistant", Content: sb.String()},
			FinishReason: mapGoogleFinish(cand.FinishReason),
		})
	}
	if gr.UsageMetadata != nil {
		resp.Usage = &unified.Usage{
			PromptTokens:     int(gr.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(gr.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(gr.UsageMetadata.TotalTokenCount),
		}
	}
	return resp, nil
}

func mapGoogleFinish(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	case "":
		return ""
	default:
		return strings.ToLower(string(reason))
	}
}

// edgeChatRequest is the "run model by slug" chat form.
type edgeChatRequest struct {
	Messages    []unified.Message `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

// edgeEnvelope is the success/result wrapper every edge response uses.
type edgeEnvelope struct {
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func buildEdgeChat(req *unified.Request, model *registry.ModelConfig) ([]byte, error) {
	msgs := make([]unified.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, unified.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	return json.Marshal(edgeChatRequest{
		Messages:    msgs,
		MaxTokens:   clampTokens(req.MaxTokens, model.MaxTokens),
		Temperature: req.Temperature,
		Stream:      req.Stream && model.Streaming,
	})
}

func parseEdgeChat(raw []byte, req *unified.Request, model *registry.ModelConfig) (*unified.Response, error) {
	var env edgeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("chat: decode edge response: %w", err)
	}
	if err := env.err("chat"); err != nil {
		return nil, err
	}

	var result struct {
		Response string `json:"response"`
		Usage    *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("chat: decode edge result: %w", err)
	}

	resp := newResponse("", req, model)
	resp.Choices = []unified.Choice{{
		Message:      unified.Message{Role: "assistant", Content: result.Response},
		FinishReason: "stop",
	}}
	if result.Usage != nil {
		resp.Usage = &unified.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		}
	}
	return resp, nil
}

// err converts an unsuccessful edge envelope into an error.
func (e *edgeEnvelope) err(op string) error {
	if e.Success || len(e.Errors) == 0 {
		if !e.Success && len(e.Result) == 0 {
			return fmt.Errorf("%s: edge call unsuccessful", op)
		}
		return nil
	}
	first := e.Errors[0]
	return fmt.Errorf("%s: edge error %d: %s", op, first.Code, first.Message)
}
