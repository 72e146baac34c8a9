package main

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
)

// respondGoogle answers a Google-dialect sub-request. The endpoint carries
// both model and action, e.g. "models/gemini-2.0-flash:generateContent".
func respondGoogle(sub wireRequest) (int, any) {
	_, action, ok := strings.Cut(sub.Endpoint, ":")
	if !ok {
		return http.StatusNotFound, map[string]any{
			"error": map[string]any{
				"code":    404,
				"message": "malformed endpoint " + sub.Endpoint,
				"status":  "NOT_FOUND",
			},
		}
	}

	switch action {
	case "generateContent":
		return googleGenerate(sub)
	case "embedContent":
		return http.StatusOK, map[string]any{
			"embedding": map[string]any{"values": fakeEmbedding(768)},
		}
	case "predict":
		return http.StatusOK, map[string]any{
			"predictions": []map[string]string{
				{"bytesBase64Encoded": fakeAudio(), "mimeType": "image/png"},
			},
		}
	case "predictLongRunning":
		return http.StatusOK, map[string]any{
			"name": fmt.Sprintf("operations/%08x", rand.Uint32()),
			"done": false,
		}
	case "connect":
		return http.StatusOK, map[string]any{
			"setupComplete": map[string]any{},
			"sessionId":     fmt.Sprintf("live-%08x", rand.Uint32()),
		}
	default:
		return http.StatusNotFound, map[string]any{
			"error": map[string]any{
				"code":    404,
				"message": "unknown action " + action,
				"status":  "NOT_FOUND",
			},
		}
	}
}

func googleGenerate(sub wireRequest) (int, any) {
	// Speech requests arrive as generateContent with an AUDIO response
	// modality; answer with inline audio data instead of text parts.
	if bytes.Contains(sub.Body, []byte(`"AUDIO"`)) {
		return http.StatusOK, map[string]any{
			"responseId": fmt.Sprintf("resp-%08x", rand.Uint32()),
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"parts": []map[string]any{
							{"inlineData": map[string]string{
								"mimeType": "audio/L16;rate=24000",
								"data":     fakeAudio(),
							}},
						},
						"role": "model",
					},
					"finishReason": "STOP",
				},
			},
		}
	}

	text := fakeSentence(12)
	return http.StatusOK, map[string]any{
		"responseId": fmt.Sprintf("resp-%08x", rand.Uint32()),
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]string{{"text": text}},
					"role":  "model",
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]int{
			"promptTokenCount":     len(sub.Body)/4 + 1,
			"candidatesTokenCount": estimateTokens(text),
			"totalTokenCount":      len(sub.Body)/4 + 1 + estimateTokens(text),
		},
	}
}
