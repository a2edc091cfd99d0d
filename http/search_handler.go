package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/yourorg/mls-api/reso"
)

type SearchDeps struct {
	Registry *reso.Registry
}

// SearchRequest is the JSON body for POST /v1/search. Filters take scalars
// or {gte,lte,gt,lt} range objects keyed by RESO field name.
type SearchRequest struct {
	Provider string       `json:"provider,omitempty"`
	Filters  reso.Filters `json:"filters,omitempty"`
	Select   []string     `json:"select,omitempty"`
	Expand   []string     `json:"expand,omitempty"`
	OrderBy  string       `json:"orderby,omitempty"`
	Top      *int         `json:"top,omitempty"`
	Skip     *int         `json:"skip,omitempty"`
}

func defInt(v *int, d int) int {
	if v == nil {
		return d
	}
	return *v
}

func WriteError(w http.ResponseWriter, req *http.Request, status int, code string, detail string) {
	render.Status(req, status)
	render.JSON(w, req, map[string]any{"error": code, "detail": detail})
}

// WriteProviderError maps the provider error taxonomy onto HTTP statuses.
// Upstream failures are gateway errors; caller mistakes are 4xx.
func WriteProviderError(w http.ResponseWriter, req *http.Request, err error) {
	var rl *reso.RateLimitError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
		WriteError(w, req, http.StatusTooManyRequests, "provider_rate_limited", err.Error())
	case errors.Is(err, reso.ErrProviderNotConfigured):
		WriteError(w, req, http.StatusBadRequest, "provider_not_configured", err.Error())
	case errors.Is(err, reso.ErrNotRESOCompliant):
		WriteError(w, req, http.StatusBadRequest, "provider_not_reso_compliant", err.Error())
	case errors.Is(err, reso.ErrAuthentication):
		WriteError(w, req, http.StatusBadGateway, "provider_auth_failed", err.Error())
	case errors.Is(err, reso.ErrResponseFormat):
		WriteError(w, req, http.StatusBadGateway, "bad_provider_response", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		WriteError(w, req, http.StatusGatewayTimeout, "provider_timeout", err.Error())
	default:
		WriteError(w, req, http.StatusBadGateway, "upstream_error", err.Error())
	}
}

func RegisterSearch(r chi.Router, d SearchDeps) {
	// POST: full JSON query
	r.Post("/v1/search", func(w http.ResponseWriter, req *http.Request) {
		var body SearchRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			WriteError(w, req, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		handleSearchRequest(w, req, d, body)
	})

	// GET: the common filters as query params
	r.Get("/v1/search", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		body := SearchRequest{
			Provider: q.Get("provider"),
			OrderBy:  q.Get("orderby"),
			Filters:  reso.Filters{},
		}
		for param, field := range map[string]string{
			"city":          "City",
			"state":         "StateOrProvince",
			"postal_code":   "PostalCode",
			"status":        "StandardStatus",
			"property_type": "PropertyType",
		} {
			if v := q.Get(param); v != "" {
				body.Filters[field] = v
			}
		}
		price := reso.Range{}
		if v := q.Get("min_price"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				price.GTE = f
			}
		}
		if v := q.Get("max_price"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				price.LTE = f
			}
		}
		if price.GTE != nil || price.LTE != nil {
			body.Filters["ListPrice"] = price
		}
		if v := q.Get("min_beds"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				body.Filters["BedroomsTotal"] = reso.Range{GTE: i}
			}
		}
		if v := q.Get("select"); v != "" {
			body.Select = strings.Split(v, ",")
		}
		if v := q.Get("expand"); v != "" {
			body.Expand = strings.Split(v, ",")
		}
		if v := q.Get("top"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				body.Top = &i
			}
		}
		if v := q.Get("skip"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				body.Skip = &i
			}
		}
		handleSearchRequest(w, req, d, body)
	})
}

func handleSearchRequest(w http.ResponseWriter, req *http.Request, d SearchDeps, body SearchRequest) {
	q := reso.Query{
		Filters: body.Filters,
		Select:  body.Select,
		Expand:  body.Expand,
		OrderBy: body.OrderBy,
		Top:     defInt(body.Top, 0),
		Skip:    defInt(body.Skip, 0),
	}

	res, err := searchFor(req, d.Registry, body.Provider, q)
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
}
