package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
)

// respondAnthropic answers an Anthropic-dialect sub-request. Only the
// Messages API is modelled; Anthropic serves chat exclusively here.
func respondAnthropic(sub wireRequest) (int, any) {
	if !strings.HasSuffix(sub.Endpoint, "messages") {
		return http.StatusNotFound, errorResponse{Error: errorDetail{
			Message: "unknown endpoint " + sub.Endpoint,
			Type:    "invalid_request_error",
			Code:    "unknown_endpoint",
		}}
	}

	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	_ = json.Unmarshal(sub.Body, &req)

	var promptLen int
	for _, m := range req.Messages {
		promptLen += len(m.Content)
	}
	text := fakeSentence(12)

	return http.StatusOK, map[string]any{
		"id":   fmt.Sprintf("msg_%012x", rand.Uint64()&0xffffffffffff),
		"type": "message",
		"role": "assistant",
		"content": []map[string]string{
			{"type": "text", "text": text},
		},
		"model":       req.Model,
		"stop_reason": "end_turn",
		"usage": map[string]int{
			"input_tokens":  promptLen/4 + 1,
			"output_tokens": estimateTokens(text),
		},
	}
}
