package reso

import (
	"fmt"
	"strings"
)

// authHeaders merges a provider's static headers with its credential header.
// The AuthFormat template covers all three shapes we see in the wild:
// "Bearer {key}" (Bridge, MLS Grid, Estated), a bare "{key}" in a custom
// header (RentSpree X-API-Key, ATTOM apikey), or any other template a
// provider dreams up.
func authHeaders(cfg ProviderConfig, creds Credentials) (map[string]string, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Name, ErrMissingCredential)
	}
	h := make(map[string]string, len(cfg.Headers)+2)
	for k, v := range cfg.Headers {
		h[k] = v
	}
	h[cfg.AuthHeader] = strings.ReplaceAll(cfg.AuthFormat, "{key}", creds.APIKey)
	return h, nil
}
