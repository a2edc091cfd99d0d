package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	httpapi "github.com/yourorg/mls-api/http"
	"github.com/yourorg/mls-api/internal/redisx"
	"github.com/yourorg/mls-api/reso"
)

type Deps struct {
	Registry *reso.Registry
	Redis    *redisx.Client

	// Refetch enqueues a background refresh for a stale cache entry.
	Refetch func(provider, listingKey string)

	// TTL and staleness tuning
	CacheTTL    time.Duration
	StaleAfter  time.Duration
	NegativeTTL time.Duration
}

// Envelope is the cached listing wrapper stored in Redis. Staleness is
// tracked separately from the Redis TTL so a stale entry can still be
// served while a refresh runs.
type Envelope struct {
	Data *reso.Property `json:"data"`
	Meta struct {
		LastFetch  time.Time `json:"last_fetch_at"`
		StaleAfter time.Time `json:"stale_after"`
		TTLSeconds int       `json:"ttl_seconds"`
		Provider   string    `json:"provider"`
	} `json:"meta"`
}

// Keys returns the cache, miss-cooldown, and fill-lock keys for a listing.
func Keys(provider, listingKey string) (cacheKey, missKey, lockKey string) {
	base := provider + ":" + listingKey
	return "listing:" + base, "listing:miss:" + base, "listing:lock:" + base
}

// Load reads a cached listing envelope. A nil Redis client, a miss, or a
// corrupt entry all read as "not cached".
func Load(ctx context.Context, rdb *redisx.Client, provider, listingKey string) (*Envelope, bool) {
	if rdb == nil {
		return nil, false
	}
	cacheKey, _, _ := Keys(provider, listingKey)
	val, err := rdb.Get(ctx, cacheKey)
	if err != nil || val == "" {
		return nil, false
	}
	var env Envelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return nil, false
	}
	return &env, true
}

// Store writes a listing envelope with the configured TTL and staleness
// horizon.
func Store(ctx context.Context, rdb *redisx.Client, provider, listingKey string, prop *reso.Property, ttl, staleAfter time.Duration) error {
	if rdb == nil {
		return nil
	}
	env := Envelope{Data: prop}
	env.Meta.LastFetch = time.Now()
	env.Meta.StaleAfter = env.Meta.LastFetch.Add(maxDur(staleAfter, 5*time.Minute))
	env.Meta.TTLSeconds = int(maxDur(ttl, time.Hour).Seconds())
	env.Meta.Provider = provider
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	cacheKey, _, _ := Keys(provider, listingKey)
	return rdb.Set(ctx, cacheKey, string(b), time.Duration(env.Meta.TTLSeconds)*time.Second)
}

func maxDur(a, b time.Duration) time.Duration {
	if a > 0 {
		return a
	}
	return b
}

type detailRequest struct {
	Provider string   `json:"provider,omitempty"`
	Expand   []string `json:"expand,omitempty"`
}

// RegisterProperties wires the cached detail and resolve endpoints. The
// static /resolve route takes priority over the {listingKey} parameter.
func RegisterProperties(r chi.Router, d Deps) {
	r.Route("/v1/properties", func(r chi.Router) {
		r.Post("/resolve", func(w http.ResponseWriter, req *http.Request) {
			var body ResolveRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httpapi.WriteError(w, req, http.StatusBadRequest, "invalid_json", err.Error())
				return
			}
			resolve(w, req, d, body)
		})
		r.Get("/resolve", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			resolve(w, req, d, ResolveRequest{
				Address: q.Get("address"),
				City:    q.Get("city"),
				State:   q.Get("state"),
				Zip:     q.Get("zip"),
			})
		})
		r.Get("/{listingKey}", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			var expand []string
			if v := q.Get("expand"); v != "" {
				expand = strings.Split(v, ",")
			}
			detail(w, req, d, chi.URLParam(req, "listingKey"), detailRequest{
				Provider: q.Get("provider"),
				Expand:   expand,
			})
		})
		r.Post("/{listingKey}", func(w http.ResponseWriter, req *http.Request) {
			var body detailRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httpapi.WriteError(w, req, http.StatusBadRequest, "invalid_json", err.Error())
				return
			}
			detail(w, req, d, chi.URLParam(req, "listingKey"), body)
		})
	})
}

func detail(w http.ResponseWriter, req *http.Request, d Deps, listingKey string, body detailRequest) {
	if listingKey == "" {
		httpapi.WriteError(w, req, http.StatusBadRequest, "listing_key_required", "listing key is required")
		return
	}
	provider := body.Provider
	if provider == "" {
		provider = d.Registry.Provider()
	}
	ctx := req.Context()
	_, missKey, lockKey := Keys(provider, listingKey)

	if d.Redis != nil {
		if ok, _ := d.Redis.Exists(ctx, missKey); ok {
			render.Status(req, http.StatusNotFound)
			render.JSON(w, req, map[string]any{
				"error":               "not_found",
				"listing_key":         listingKey,
				"cache_miss_cooldown": true,
			})
			return
		}
		if env, ok := Load(ctx, d.Redis, provider, listingKey); ok {
			stale := time.Now().After(env.Meta.StaleAfter)
			if stale && d.Refetch != nil {
				d.Refetch(provider, listingKey)
			}
			render.JSON(w, req, map[string]any{
				"ok":          true,
				"source":      "cache",
				"stale":       stale,
				"provider":    provider,
				"listing_key": listingKey,
				"data":        env.Data,
			})
			return
		}
		// Cache miss: take a short lock so concurrent misses do not all
		// hit the provider.
		if ok, _ := d.Redis.SetNX(ctx, lockKey, "1", 8*time.Second); !ok {
			render.Status(req, http.StatusAccepted)
			render.JSON(w, req, map[string]any{
				"ok":          false,
				"in_progress": true,
				"listing_key": listingKey,
			})
			return
		}
	}

	prop, err := fetchDetail(req, d, body.Provider, listingKey, body.Expand)
	if err != nil {
		if isNotFound(err) {
			if d.Redis != nil {
				_ = d.Redis.Set(ctx, missKey, "1", maxDur(d.NegativeTTL, time.Minute))
			}
			render.Status(req, http.StatusNotFound)
			render.JSON(w, req, map[string]any{"error": "not_found", "listing_key": listingKey})
			return
		}
		httpapi.WriteProviderError(w, req, err)
		return
	}

	_ = Store(ctx, d.Redis, provider, listingKey, prop, d.CacheTTL, d.StaleAfter)
	render.JSON(w, req, map[string]any{
		"ok":          true,
		"source":      "fresh",
		"stale":       false,
		"provider":    provider,
		"listing_key": listingKey,
		"data":        prop,
	})
}

func fetchDetail(req *http.Request, d Deps, provider, listingKey string, expand []string) (*reso.Property, error) {
	if provider == "" {
		return d.Registry.GetProperty(req.Context(), listingKey, expand...)
	}
	client, err := d.Registry.Client(provider)
	if err != nil {
		return nil, err
	}
	return client.GetProperty(req.Context(), listingKey, expand...)
}

// isNotFound treats provider 404s and empty detail payloads as a missing
// listing rather than an upstream fault.
func isNotFound(err error) bool {
	if errors.Is(err, reso.ErrResponseFormat) {
		return true
	}
	var re *reso.RequestError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}
