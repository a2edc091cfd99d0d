package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/yourorg/mls-api/reso"
)

type ProvidersDeps struct {
	Registry *reso.Registry
}

// RegisterProviders exposes connectivity probes for every configured
// provider. The probe issues real requests, so this endpoint is as slow as
// the slowest provider.
func RegisterProviders(r chi.Router, d ProvidersDeps) {
	r.Get("/v1/providers/status", func(w http.ResponseWriter, req *http.Request) {
		status := d.Registry.TestConnections(req.Context())
		render.JSON(w, req, map[string]any{
			"ok":        true,
			"current":   d.Registry.Provider(),
			"providers": status,
		})
	})
}
