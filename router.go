package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	httpapi "github.com/yourorg/mls-api/http"
	httpv1 "github.com/yourorg/mls-api/http/v1"
	"github.com/yourorg/mls-api/reso"
)

func BuildRouter(reg *reso.Registry, deps httpv1.Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(100, 1*time.Minute)) // protect provider quotas
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"ok":true}`)) })

	httpapi.RegisterSearch(r, httpapi.SearchDeps{Registry: reg})
	httpapi.RegisterListings(r, httpapi.ListingsDeps{Registry: reg})
	httpapi.RegisterMarket(r, httpapi.MarketDeps{Registry: reg})
	httpapi.RegisterProviders(r, httpapi.ProvidersDeps{Registry: reg})
	httpapi.RegisterRefresh(r, httpapi.RefreshDeps{Enqueue: deps.Refetch})

	// v1 cached detail + resolve with Redis SWR
	httpv1.RegisterProperties(r, deps)

	return r
}
