package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/yourorg/mls-api/reso"
)

type MarketDeps struct {
	Registry *reso.Registry
}

func RegisterMarket(r chi.Router, d MarketDeps) {
	r.Get("/v1/comparables", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		if latErr != nil || lonErr != nil {
			WriteError(w, req, http.StatusBadRequest, "coordinates_required", "lat and lon are required")
			return
		}
		cq := reso.ComparablesQuery{
			Latitude:     lat,
			Longitude:    lon,
			PropertyType: q.Get("property_type"),
		}
		if v := q.Get("radius"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				cq.RadiusMiles = f
			}
		}
		if v := q.Get("days_back"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				cq.DaysBack = i
			}
		}
		if v := q.Get("limit"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				cq.Limit = i
			}
		}

		comps, err := comparablesFor(req, d.Registry, q.Get("provider"), cq)
		if err != nil {
			WriteProviderError(w, req, err)
			return
		}
		render.JSON(w, req, map[string]any{
			"ok":          true,
			"count":       len(comps),
			"comparables": comps,
		})
	})

	r.Get("/v1/market-stats", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		city := q.Get("city")
		if city == "" {
			WriteError(w, req, http.StatusBadRequest, "city_required", "city is required")
			return
		}
		daysBack := 0
		if v := q.Get("days_back"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				daysBack = i
			}
		}

		stats, err := statsFor(req, d.Registry, q.Get("provider"), city, q.Get("property_type"), daysBack)
		if err != nil {
			WriteProviderError(w, req, err)
			return
		}
		// Statistics are always computed live.
		w.Header().Set("Cache-Control", "no-store")
		render.JSON(w, req, map[string]any{"ok": true, "stats": stats})
	})
}

func comparablesFor(req *http.Request, reg *reso.Registry, provider string, cq reso.ComparablesQuery) ([]reso.Property, error) {
	if provider == "" {
		return reg.GetComparables(req.Context(), cq)
	}
	client, err := reg.Client(provider)
	if err != nil {
		return nil, err
	}
	return client.GetComparableSales(req.Context(), cq)
}

func statsFor(req *http.Request, reg *reso.Registry, provider string, city, propertyType string, daysBack int) (*reso.MarketStatistics, error) {
	if provider == "" {
		return reg.GetMarketStats(req.Context(), city, propertyType, daysBack)
	}
	client, err := reg.Client(provider)
	if err != nil {
		return nil, err
	}
	return client.GetMarketStatistics(req.Context(), city, propertyType, daysBack)
}
