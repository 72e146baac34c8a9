package capability

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

func mediaModel(name string, d registry.Dialect, c registry.Capability) *registry.ModelConfig {
	return &registry.ModelConfig{
		Name:         name,
		Dialect:      d,
		Capabilities: []registry.Capability{c},
		MaxTokens:    1,
	}
}

func TestImageHandler(t *testing.T) {
	h := imageHandler{}
	req := &unified.Request{Capability: registry.CapabilityImage, Prompt: "a lighthouse", Size: "1024x1024"}

	t.Run("openai response with url", func(t *testing.T) {
		raw := []byte(`{"created": 1, "data": [{"url": "https://img.example.com/1.png"}]}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("dall-e-3", registry.DialectOpenAI, registry.CapabilityImage))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if len(resp.Data) != 1 || resp.Data[0].URL != "https://img.example.com/1.png" {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	t.Run("google predictions", func(t *testing.T) {
		raw := []byte(`{"predictions": [{"bytesBase64Encoded": "aW1n", "mimeType": "image/png"}]}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("imagen-3.0-generate-002", registry.DialectGoogle, registry.CapabilityImage))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if len(resp.Data) != 1 || resp.Data[0].B64 != "aW1n" {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	t.Run("edge image envelope", func(t *testing.T) {
		raw := []byte(`{"result": {"image": "aW1n"}, "success": true, "errors": []}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("flux", registry.DialectEdgeRun, registry.CapabilityImage))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.Data[0].B64 != "aW1n" {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	t.Run("empty openai response is an error", func(t *testing.T) {
		raw := []byte(`{"created": 1, "data": []}`)
		if _, err := h.ParseResponse(raw, req, mediaModel("dall-e-3", registry.DialectOpenAI, registry.CapabilityImage)); err == nil {
			t.Error("expected error")
		}
	})
}

func TestVideoHandler(t *testing.T) {
	h := videoHandler{}
	req := &unified.Request{Capability: registry.CapabilityVideo, Prompt: "waves", Duration: 5, Size: "16:9"}

	t.Run("openai job reference", func(t *testing.T) {
		body, err := h.BuildBody(req, mediaModel("sora-1", registry.DialectOpenAI, registry.CapabilityVideo))
		if err != nil {
			t.Fatalf("BuildBody: %v", err)
		}
		var wire openaiVideoRequest
		if err := json.Unmarshal(body, &wire); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if wire.Seconds != 5 || wire.Prompt != "waves" {
			t.Errorf("wire = %+v", wire)
		}

		raw := []byte(`{"id": "video-1", "status": "queued", "url": ""}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("sora-1", registry.DialectOpenAI, registry.CapabilityVideo))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.ID != "video-1" || resp.Data[0].Status != "queued" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("google long-running operation", func(t *testing.T) {
		body, err := h.BuildBody(req, mediaModel("veo-2.0-generate-001", registry.DialectGoogle, registry.CapabilityVideo))
		if err != nil {
			t.Fatalf("BuildBody: %v", err)
		}
		var wire struct {
			Instances  []struct{ Prompt string }  `json:"instances"`
			Parameters map[string]json.RawMessage `json:"parameters"`
		}
		if err := json.Unmarshal(body, &wire); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(wire.Instances) != 1 {
			t.Errorf("wire = %+v", wire)
		}
		if _, ok := wire.Parameters["durationSeconds"]; !ok {
			t.Error("durationSeconds missing")
		}

		raw := []byte(`{"name": "operations/op-1", "done": false}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("veo-2.0-generate-001", registry.DialectGoogle, registry.CapabilityVideo))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.ID != "operations/op-1" || resp.Data[0].Status != "pending" {
			t.Errorf("resp = %+v", resp)
		}

		done := []byte(`{"name": "operations/op-1", "done": true}`)
		resp, err = h.ParseResponse(done, req, mediaModel("veo-2.0-generate-001", registry.DialectGoogle, registry.CapabilityVideo))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.Data[0].Status != "completed" {
			t.Errorf("status = %q", resp.Data[0].Status)
		}
	})

	t.Run("missing operation name is an error", func(t *testing.T) {
		raw := []byte(`{"done": false}`)
		if _, err := h.ParseResponse(raw, req, mediaModel("veo-2.0-generate-001", registry.DialectGoogle, registry.CapabilityVideo)); err == nil {
			t.Error("expected error")
		}
	})
}

func TestSpeechHandler(t *testing.T) {
	h := speechHandler{}
	req := &unified.Request{Capability: registry.CapabilityTextToSpeech, Prompt: "read me"}

	t.Run("openai defaults the voice", func(t *testing.T) {
		body, err := h.BuildBody(req, mediaModel("tts-1", registry.DialectOpenAI, registry.CapabilityTextToSpeech))
		if err != nil {
			t.Fatalf("BuildBody: %v", err)
		}
		var wire openaiSpeechRequest
		if err := json.Unmarshal(body, &wire); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if wire.Voice != "alloy" || wire.Input != "read me" {
			t.Errorf("wire = %+v", wire)
		}
	})

	t.Run("openai json audio envelope", func(t *testing.T) {
		raw := []byte(`{"audio": "YXVkaW8="}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("tts-1", registry.DialectOpenAI, registry.CapabilityTextToSpeech))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.Data[0].Audio != "YXVkaW8=" {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	t.Run("openai raw bytes are base64 wrapped", func(t *testing.T) {
		raw := []byte{0x49, 0x44, 0x33, 0x04} // not JSON
		resp, err := h.ParseResponse(raw, req, mediaModel("tts-1", registry.DialectOpenAI, registry.CapabilityTextToSpeech))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.Data[0].Audio != base64.StdEncoding.EncodeToString(raw) {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	t.Run("google inline audio", func(t *testing.T) {
		raw := []byte(`{
			"candidates": [
				{"content": {"parts": [{"inlineData": {"mimeType": "audio/L16", "data": "YXVkaW8="}}]}}
			]
		}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("gemini", registry.DialectGoogle, registry.CapabilityTextToSpeech))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.Data[0].Audio != "YXVkaW8=" {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	t.Run("edge audio envelope", func(t *testing.T) {
		raw := []byte(`{"result": {"audio": "YXVkaW8="}, "success": true, "errors": []}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("melotts", registry.DialectEdgeRun, registry.CapabilityTextToSpeech))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.Data[0].Audio != "YXVkaW8=" {
			t.Errorf("data = %+v", resp.Data)
		}
	})
}

func TestLiveAudioHandler(t *testing.T) {
	h := liveAudioHandler{}
	req := &unified.Request{Capability: registry.CapabilityLiveAudio, Voice: "verse"}

	t.Run("openai session", func(t *testing.T) {
		body, err := h.BuildBody(req, mediaModel("gpt-4o-realtime-preview", registry.DialectOpenAI, registry.CapabilityLiveAudio))
		if err != nil {
			t.Fatalf("BuildBody: %v", err)
		}
		var wire openaiLiveRequest
		if err := json.Unmarshal(body, &wire); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if wire.Voice != "verse" {
			t.Errorf("wire = %+v", wire)
		}

		raw := []byte(`{"id": "sess-1", "client_secret": {"value": "ek-1"}}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("gpt-4o-realtime-preview", registry.DialectOpenAI, registry.CapabilityLiveAudio))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.Data[0].SessionID != "sess-1" || resp.Data[0].Token != "ek-1" {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	t.Run("google setup complete", func(t *testing.T) {
		raw := []byte(`{"setupComplete": {}, "sessionId": "live-1"}`)
		resp, err := h.ParseResponse(raw, req, mediaModel("gemini-live", registry.DialectGoogle, registry.CapabilityLiveAudio))
		if err != nil {
			t.Fatalf("ParseResponse: %v", err)
		}
		if resp.Data[0].SessionID != "live-1" {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	t.Run("google incomplete setup is an error", func(t *testing.T) {
		raw := []byte(`{}`)
		if _, err := h.ParseResponse(raw, req, mediaModel("gemini-live", registry.DialectGoogle, registry.CapabilityLiveAudio)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("openai missing session id is an error", func(t *testing.T) {
		raw := []byte(`{"client_secret": {"value": "ek-1"}}`)
		if _, err := h.ParseResponse(raw, req, mediaModel("gpt-4o-realtime-preview", registry.DialectOpenAI, registry.CapabilityLiveAudio)); err == nil {
			t.Error("expected error")
		}
	})
}
