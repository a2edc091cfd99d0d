package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type RefreshDeps struct {
	// Enqueue hands the listing to the background refresh pool. Kept as a
	// closure so this package stays off the pool's type.
	Enqueue func(provider, listingKey string)
}

// RegisterRefresh exposes a fire-and-forget cache refresh trigger. The
// request is accepted as soon as the job is queued; saturated queues drop
// silently, same as stale-hit refreshes.
func RegisterRefresh(r chi.Router, d RefreshDeps) {
	r.Post("/v1/listings/refresh", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Provider   string `json:"provider"`
			ListingKey string `json:"listing_key"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			WriteError(w, req, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		if body.ListingKey == "" {
			WriteError(w, req, http.StatusBadRequest, "listing_key_required", "listing_key is required")
			return
		}
		if d.Enqueue == nil {
			WriteError(w, req, http.StatusServiceUnavailable, "refresh_unavailable", "no refresh pool configured")
			return
		}
		d.Enqueue(body.Provider, body.ListingKey)
		render.Status(req, http.StatusAccepted)
		render.JSON(w, req, map[string]any{"ok": true, "queued": true})
	})
}
