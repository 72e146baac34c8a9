package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// respondOpenAI answers an OpenAI-dialect sub-request. The endpoint arrives
// in the relative form the real upstream expects, e.g. "chat/completions".
func respondOpenAI(sub wireRequest) (int, any) {
	switch {
	case strings.HasSuffix(sub.Endpoint, "chat/completions"):
		return openaiChat(sub.Body)
	case strings.HasSuffix(sub.Endpoint, "embeddings"):
		return openaiEmbeddings(sub.Body)
	case strings.Contains(sub.Endpoint, "images"):
		return openaiImage(sub.Body)
	case strings.Contains(sub.Endpoint, "videos"):
		return openaiVideo(sub.Body)
	case strings.Contains(sub.Endpoint, "audio/speech"):
		return openaiSpeech(sub.Body)
	case strings.Contains(sub.Endpoint, "realtime"):
		return openaiRealtime(sub.Body)
	default:
		return http.StatusNotFound, errorResponse{Error: errorDetail{
			Message: "unknown endpoint " + sub.Endpoint,
			Type:    "invalid_request_error",
			Code:    "unknown_endpoint",
		}}
	}
}

func openaiChat(body json.RawMessage) (int, any) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.Unmarshal(body, &req)

	var promptLen int
	for _, m := range req.Messages {
		promptLen += len(m.Content)
	}
	content := fakeSentence(12)

	return http.StatusOK, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-%08x", rand.Uint32()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     promptLen/4 + 1,
			"completion_tokens": estimateTokens(content),
			"total_tokens":      promptLen/4 + 1 + estimateTokens(content),
		},
	}
}

func openaiEmbeddings(body json.RawMessage) (int, any) {
	var req struct {
		Model string          `json:"model"`
		Input json.RawMessage `json:"input"`
	}
	_ = json.Unmarshal(body, &req)

	var inputs []string
	if err := json.Unmarshal(req.Input, &inputs); err != nil {
		var one string
		if json.Unmarshal(req.Input, &one) == nil {
			inputs = []string{one}
		}
	}
	if len(inputs) == 0 {
		inputs = []string{""}
	}

	data := make([]map[string]any, len(inputs))
	tokens := 0
	for i, in := range inputs {
		data[i] = map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": fakeEmbedding(1536),
		}
		tokens += estimateTokens(in)
	}

	return http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage":  map[string]int{"prompt_tokens": tokens, "total_tokens": tokens},
	}
}

func openaiImage(body json.RawMessage) (int, any) {
	return http.StatusOK, map[string]any{
		"created": time.Now().Unix(),
		"data": []map[string]string{
			{"url": fmt.Sprintf("https://mock.invalid/images/%08x.png", rand.Uint32())},
		},
	}
}

func openaiVideo(body json.RawMessage) (int, any) {
	return http.StatusOK, map[string]any{
		"id":     fmt.Sprintf("video-%08x", rand.Uint32()),
		"status": "queued",
		"url":    "",
	}
}

func openaiSpeech(body json.RawMessage) (int, any) {
	return http.StatusOK, map[string]string{"audio": fakeAudio()}
}

func openaiRealtime(body json.RawMessage) (int, any) {
	return http.StatusOK, map[string]any{
		"id":            fmt.Sprintf("sess-%08x", rand.Uint32()),
		"client_secret": map[string]string{"value": fmt.Sprintf("ek-%08x", rand.Uint32())},
	}
}
