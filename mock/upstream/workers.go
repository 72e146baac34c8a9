package main

import (
	"encoding/json"
	"net/http"
	"strings"
)

// respondWorkers answers an edge-run sub-request. The endpoint is the model
// slug itself (e.g. "@cf/meta/llama-3.1-8b-instruct"); the slug decides which
// result shape to fabricate. Everything is wrapped in the standard
// {result, success, errors} envelope.
func respondWorkers(sub wireRequest) (int, any) {
	slug := strings.TrimPrefix(sub.Endpoint, "/")

	var result any
	switch {
	case strings.Contains(slug, "bge"):
		result = workersEmbedding(sub.Body)
	case strings.Contains(slug, "flux"):
		result = map[string]string{"image": fakeAudio()}
	case strings.Contains(slug, "melotts"):
		result = map[string]string{"audio": fakeAudio()}
	default:
		text := fakeSentence(12)
		result = map[string]any{
			"response": text,
			"usage": map[string]int{
				"prompt_tokens":     len(sub.Body)/4 + 1,
				"completion_tokens": estimateTokens(text),
				"total_tokens":      len(sub.Body)/4 + 1 + estimateTokens(text),
			},
		}
	}

	return http.StatusOK, map[string]any{
		"result":  result,
		"success": true,
		"errors":  []any{},
	}
}

// workersEmbedding fabricates one 768-dim vector per input text.
func workersEmbedding(body json.RawMessage) any {
	var req struct {
		Text json.RawMessage `json:"text"`
	}
	_ = json.Unmarshal(body, &req)

	var inputs []string
	if err := json.Unmarshal(req.Text, &inputs); err != nil {
		var one string
		if json.Unmarshal(req.Text, &one) == nil {
			inputs = []string{one}
		}
	}
	if len(inputs) == 0 {
		inputs = []string{""}
	}

	const dim = 768
	data := make([][]float64, len(inputs))
	for i := range data {
		data[i] = fakeEmbedding(dim)
	}

	return map[string]any{
		"shape": []int{len(inputs), dim},
		"data":  data,
	}
}
