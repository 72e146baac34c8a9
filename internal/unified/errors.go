package unified

import (
	"fmt"

	"github.com/briefwire/ai-gateway/internal/registry"
)

// ValidationError reports a malformed or incomplete request body. Never
// retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// HTTPStatus implements the status mapping used by the error envelope writer.
func (e *ValidationError) HTTPStatus() int { return 400 }

// ModelNotFoundError reports a model name unknown to the resolved provider.
type ModelNotFoundError struct {
	Provider string
	Model    string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q not found for provider %q", e.Model, e.Provider)
}

func (e *ModelNotFoundError) HTTPStatus() int { return 400 }

// CapabilityMismatchError reports that a resolved provider or model does not
// serve the requested capability. Detected before any network call.
type CapabilityMismatchError struct {
	Provider   string
	Model      string
	Capability registry.Capability
}

func (e *CapabilityMismatchError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("model %q of provider %q does not support capability %q",
			e.Model, e.Provider, e.Capability)
	}
	return fmt.Sprintf("provider %q does not support capability %q", e.Provider, e.Capability)
}

func (e *CapabilityMismatchError) HTTPStatus() int { return 400 }

// ProviderError reports a non-success status or malformed payload from a
// remote backend. Retryability is decided by the retry classifier from the
// embedded status and message.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s returned %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %s error: %s", e.Provider, e.Message)
}

// UpstreamStatus exposes the backend's own status for retry classification.
func (e *ProviderError) UpstreamStatus() int { return e.Status }

func (e *ProviderError) HTTPStatus() int {
	switch {
	case e.Status == 429:
		return 429
	case e.Status >= 500:
		return 502
	case e.Status >= 400:
		return 502
	default:
		return 502
	}
}

// ConfigurationError reports missing required credentials or bindings at
// startup. Fails the provider's construction, never an individual request.
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Reason)
}

func (e *ConfigurationError) HTTPStatus() int { return 500 }
