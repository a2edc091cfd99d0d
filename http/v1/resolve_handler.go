package v1

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	httpapi "github.com/yourorg/mls-api/http"
	"github.com/yourorg/mls-api/internal/canon"
	"github.com/yourorg/mls-api/reso"
)

type ResolveRequest struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

// resolveEnvelope is the cached address-to-listing mapping. It carries the
// matched record so a cache hit answers without a second lookup.
type resolveEnvelope struct {
	Provider   string         `json:"provider"`
	ListingKey string         `json:"listing_key"`
	Data       *reso.Property `json:"data"`
	Meta       struct {
		LastFetch  time.Time `json:"last_fetch_at"`
		StaleAfter time.Time `json:"stale_after"`
		TTLSeconds int       `json:"ttl_seconds"`
	} `json:"meta"`
	Norm struct {
		Line1 string `json:"line1"`
		City  string `json:"city"`
		State string `json:"state"`
		Zip   string `json:"zip"`
	} `json:"normalized"`
}

func resolve(w http.ResponseWriter, req *http.Request, d Deps, body ResolveRequest) {
	if body.Address == "" || body.City == "" || body.State == "" || body.Zip == "" {
		httpapi.WriteError(w, req, http.StatusBadRequest, "address_required", "address, city, state, zip are required")
		return
	}
	line1, city, st, zip, pkey := canon.Canonicalize(body.Address, body.City, body.State, body.Zip)
	if pkey == "" {
		httpapi.WriteError(w, req, http.StatusBadRequest, "address_required", "address did not canonicalize")
		return
	}
	ctx := req.Context()
	cacheKey := "resolve:pk:" + pkey
	missKey := "resolve:miss:" + pkey
	lockKey := "resolve:lock:" + pkey
	norm := map[string]string{"line1": line1, "city": city, "state": st, "zip": zip}

	if d.Redis != nil {
		if ok, _ := d.Redis.Exists(ctx, missKey); ok {
			render.Status(req, http.StatusNotFound)
			render.JSON(w, req, map[string]any{
				"error":               "not_found",
				"property_key":        pkey,
				"cache_miss_cooldown": true,
			})
			return
		}
		if val, err := d.Redis.Get(ctx, cacheKey); err == nil && val != "" {
			var env resolveEnvelope
			if err := json.Unmarshal([]byte(val), &env); err == nil {
				stale := time.Now().After(env.Meta.StaleAfter)
				if stale && d.Refetch != nil && env.ListingKey != "" {
					d.Refetch(env.Provider, env.ListingKey)
				}
				render.JSON(w, req, map[string]any{
					"ok":           true,
					"source":       "cache",
					"stale":        stale,
					"property_key": pkey,
					"provider":     env.Provider,
					"listing_key":  env.ListingKey,
					"normalized":   norm,
					"data":         env.Data,
				})
				return
			}
		}
		if ok, _ := d.Redis.SetNX(ctx, lockKey, "1", 8*time.Second); !ok {
			render.Status(req, http.StatusAccepted)
			render.JSON(w, req, map[string]any{"ok": false, "in_progress": true, "property_key": pkey})
			return
		}
	}

	provider := d.Registry.Provider()
	match, err := findByAddress(req, d, body, line1, city, st)
	if err != nil {
		httpapi.WriteProviderError(w, req, err)
		return
	}
	if match == nil {
		if d.Redis != nil {
			_ = d.Redis.Set(ctx, missKey, "1", maxDur(d.NegativeTTL, time.Minute))
		}
		render.Status(req, http.StatusNotFound)
		render.JSON(w, req, map[string]any{"error": "not_found", "property_key": pkey})
		return
	}

	listingKey := ""
	if match.ListingKey != nil {
		listingKey = *match.ListingKey
	}
	env := resolveEnvelope{Provider: provider, ListingKey: listingKey, Data: match}
	env.Meta.LastFetch = time.Now()
	env.Meta.StaleAfter = env.Meta.LastFetch.Add(maxDur(d.StaleAfter, 5*time.Minute))
	env.Meta.TTLSeconds = int(maxDur(d.CacheTTL, time.Hour).Seconds())
	env.Norm.Line1, env.Norm.City, env.Norm.State, env.Norm.Zip = line1, city, st, zip
	if d.Redis != nil {
		if b, merr := json.Marshal(env); merr == nil {
			_ = d.Redis.Set(ctx, cacheKey, string(b), time.Duration(env.Meta.TTLSeconds)*time.Second)
		}
		// Prime the detail cache so a follow-up key lookup is a hit.
		if listingKey != "" {
			_ = Store(ctx, d.Redis, provider, listingKey, match, d.CacheTTL, d.StaleAfter)
		}
	}

	render.JSON(w, req, map[string]any{
		"ok":           true,
		"source":       "fresh",
		"stale":        false,
		"property_key": pkey,
		"provider":     provider,
		"listing_key":  listingKey,
		"normalized":   norm,
		"data":         match,
	})
}

// findByAddress searches the preferred provider by postal code and picks
// the record whose canonical street line matches.
func findByAddress(req *http.Request, d Deps, body ResolveRequest, line1, city, st string) (*reso.Property, error) {
	res, err := d.Registry.Search(req.Context(), reso.Query{
		Filters: reso.Filters{"PostalCode": strings.TrimSpace(body.Zip)},
		Select:  reso.StandardPropertyFields,
		Top:     20,
	})
	if err != nil {
		return nil, err
	}
	for i := range res.Records {
		p := &res.Records[i]
		addr := streetLine(p)
		if addr == "" || p.Address.City == nil || p.Address.State == nil {
			continue
		}
		postal := body.Zip
		if p.Address.PostalCode != nil {
			postal = *p.Address.PostalCode
		}
		ln1, cy, st2, _, _ := canon.Canonicalize(addr, *p.Address.City, *p.Address.State, postal)
		if ln1 == line1 && cy == city && st2 == st {
			return p, nil
		}
	}
	// No match in the first page; stop there to protect provider quota.
	return nil, nil
}

// streetLine rebuilds the street address from parsed parts, falling back
// to the provider's unparsed form.
func streetLine(p *reso.Property) string {
	parts := make([]string, 0, 3)
	for _, f := range []*string{p.Address.StreetNumber, p.Address.StreetName, p.Address.StreetSuffix} {
		if f != nil && *f != "" {
			parts = append(parts, *f)
		}
	}
	if len(parts) >= 2 {
		return strings.Join(parts, " ")
	}
	if p.Address.Unparsed != nil {
		return *p.Address.Unparsed
	}
	return strings.Join(parts, " ")
}
