package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/yourorg/mls-api/reso"
)

type ListingsDeps struct {
	Registry *reso.Registry
}

func RegisterListings(r chi.Router, d ListingsDeps) {
	r.Get("/v1/listings/active", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		criteria := reso.ActiveListingsQuery{
			City:         q.Get("city"),
			State:        q.Get("state"),
			PropertyType: q.Get("property_type"),
		}
		if v := q.Get("min_price"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				criteria.MinPrice = f
			}
		}
		if v := q.Get("max_price"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				criteria.MaxPrice = f
			}
		}
		if v := q.Get("min_beds"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				criteria.MinBeds = i
			}
		}
		if v := q.Get("min_baths"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				criteria.MinBaths = i
			}
		}
		if v := q.Get("limit"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				criteria.Limit = i
			}
		}
		if v := q.Get("modified_since"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				WriteError(w, req, http.StatusBadRequest, "invalid_modified_since", "modified_since must be RFC 3339")
				return
			}
			criteria.ModifiedSince = ts
		}

		res, err := searchFor(req, d.Registry, q.Get("provider"), criteria.Query())
		if err != nil {
			WriteProviderError(w, req, err)
			return
		}
		resp := map[string]any{
			"ok":         true,
			"count":      len(res.Records),
			"properties": res.Records,
		}
		if res.RawCount != nil {
			resp["total"] = *res.RawCount
		}
		render.JSON(w, req, resp)
	})
}

// searchFor routes a query through the preferred provider or an explicit
// override.
func searchFor(req *http.Request, reg *reso.Registry, provider string, q reso.Query) (*reso.SearchResult, error) {
	if provider == "" {
		return reg.Search(req.Context(), q)
	}
	client, err := reg.Client(provider)
	if err != nil {
		return nil, err
	}
	return client.SearchProperties(req.Context(), q)
}
