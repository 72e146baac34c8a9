// Package workers adapts the edge-inference backend. Its base URL is
// account-scoped: the {account} placeholder is substituted once at
// construction, never per request.
package workers

import (
	"strings"

	"github.com/briefwire/ai-gateway/internal/adapters"
	"github.com/briefwire/ai-gateway/internal/registry"
	"github.com/briefwire/ai-gateway/internal/unified"
)

// New builds the edge adapter for the given account.
func New(provider *registry.ProviderConfig, apiKey, accountID string) (*adapters.Base, error) {
	if accountID == "" {
		return nil, &unified.ConfigurationError{
			Component: provider.Name,
			Reason:    "no account id configured",
		}
	}

	// The registry entry is shared; scope a copy to this account.
	scoped := *provider
	scoped.BaseURL = strings.ReplaceAll(provider.BaseURL, "{account}", accountID)

	return adapters.NewBase(&scoped, apiKey)
}
