package reso

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const modificationStampLayout = "2006-01-02T15:04:05.000000Z"

// Client talks to one property-data provider. All requests funnel through
// its executor, which owns the rate interval and retry policy; the client
// itself holds no mutable state, so it is safe for concurrent use.
type Client struct {
	cfg     ProviderConfig
	creds   Credentials
	exec    *executor
	log     *slog.Logger
	prepare func(q *Query)
}

// NewClient builds a client for any provider config. Provider quirks
// (mandatory filters, default projections, expand caps) hook in by name,
// so a config pointing at a test server behaves exactly like production.
func NewClient(cfg ProviderConfig, creds Credentials, log *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	headers, err := authHeaders(cfg, creds)
	if err != nil {
		return nil, err
	}
	if cfg.Name == ProviderBridge && creds.ServerID != "" {
		headers["X-Server-ID"] = creds.ServerID
	}

	c := &Client{cfg: cfg, creds: creds, log: log}
	switch cfg.Name {
	case ProviderBridge:
		c.prepare = c.prepareBridge
	case ProviderMLSGrid:
		c.prepare = c.prepareMLSGrid
	}
	c.exec = newExecutor(cfg, headers, log)
	return c, nil
}

func (c *Client) Name() string { return c.cfg.Name }

// searchRaw runs one prepared search and returns the decoded payload.
// The caller's filter map is cloned before the prepare hook touches it.
func (c *Client) searchRaw(ctx context.Context, q Query) (*payload, error) {
	if q.Filters == nil {
		q.Filters = Filters{}
	} else {
		q.Filters = q.Filters.clone()
	}
	if c.prepare != nil {
		c.prepare(&q)
	}
	params := q.Params()
	if !c.cfg.RESO {
		params = q.plainParams()
	}
	return c.exec.doJSON(ctx, http.MethodGet, c.cfg.SearchPath, params)
}

// SearchProperties runs a property search and normalizes every record.
// Empty result sets come back as empty slices, never as errors.
func (c *Client) SearchProperties(ctx context.Context, q Query) (*SearchResult, error) {
	p, err := c.searchRaw(ctx, q)
	if err != nil {
		return nil, err
	}
	recs := p.records(c.cfg.DataKey)
	out := &SearchResult{Records: make([]Property, 0, len(recs)), RawCount: p.count()}
	for _, rec := range recs {
		out.Records = append(out.Records, Normalize(rec, c.cfg.FieldMap))
	}
	return out, nil
}

// GetProperty fetches a single listing by key.
func (c *Client) GetProperty(ctx context.Context, listingKey string, expand ...string) (*Property, error) {
	endpoint := fmt.Sprintf(c.cfg.DetailPath, listingKey)
	params := url.Values{}
	if len(expand) > 0 && c.cfg.RESO {
		params.Set("$expand", strings.Join(expand, ","))
	}
	p, err := c.exec.doJSON(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return nil, err
	}
	rec := p.detail(c.cfg.DataKey)
	if rec == nil {
		return nil, fmt.Errorf("%s: %w: empty detail response", c.cfg.Name, ErrResponseFormat)
	}
	prop := Normalize(rec, c.cfg.FieldMap)
	return &prop, nil
}

// ActiveListingsQuery bounds a current-inventory pull. Zero fields are
// simply not filtered on.
type ActiveListingsQuery struct {
	City          string
	State         string
	MinPrice      float64
	MaxPrice      float64
	PropertyType  string
	MinBeds       int
	MinBaths      int
	ModifiedSince time.Time
	Limit         int
}

// Query translates the criteria into the underlying search request:
// status Active, priciest first, media expanded.
func (a ActiveListingsQuery) Query() Query {
	filters := Filters{"StandardStatus": "Active"}
	if a.City != "" {
		filters["City"] = a.City
	}
	if a.State != "" {
		filters["StateOrProvince"] = a.State
	}
	if a.PropertyType != "" {
		filters["PropertyType"] = a.PropertyType
	}
	if a.MinBeds > 0 {
		filters["BedroomsTotal"] = Range{GTE: a.MinBeds}
	}
	if a.MinBaths > 0 {
		filters["BathroomsFull"] = Range{GTE: a.MinBaths}
	}
	switch {
	case a.MinPrice > 0 && a.MaxPrice > 0:
		filters["ListPrice"] = Range{GTE: a.MinPrice, LTE: a.MaxPrice}
	case a.MinPrice > 0:
		filters["ListPrice"] = Range{GTE: a.MinPrice}
	case a.MaxPrice > 0:
		filters["ListPrice"] = Range{LTE: a.MaxPrice}
	}
	if !a.ModifiedSince.IsZero() {
		filters["ModificationTimestamp"] = Range{GT: a.ModifiedSince.UTC().Format(modificationStampLayout)}
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 100
	}
	return Query{
		Filters: filters,
		OrderBy: "ListPrice desc",
		Top:     limit,
		Expand:  []string{"Media"},
	}
}

func (c *Client) GetActiveListings(ctx context.Context, a ActiveListingsQuery) ([]Property, error) {
	res, err := c.SearchProperties(ctx, a.Query())
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// ComparablesQuery describes a closed-sales lookup around a point.
type ComparablesQuery struct {
	Latitude     float64
	Longitude    float64
	RadiusMiles  float64 // default 1.0
	PropertyType string
	DaysBack     int // default 180
	Limit        int // default 20
}

// GetComparableSales pulls recent closed sales near a location. Providers
// here have no geo queries, so it over-fetches by close date and filters by
// distance client-side: records outside the radius or without coordinates
// are dropped, the rest sort ascending by distance and truncate to limit.
func (c *Client) GetComparableSales(ctx context.Context, cq ComparablesQuery) ([]Property, error) {
	radius := cq.RadiusMiles
	if radius <= 0 {
		radius = 1.0
	}
	daysBack := cq.DaysBack
	if daysBack <= 0 {
		daysBack = 180
	}
	limit := cq.Limit
	if limit <= 0 {
		limit = 20
	}

	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)
	filters := Filters{
		"StandardStatus": "Closed",
		"CloseDate": Range{
			GTE: start.Format("2006-01-02") + "T00:00:00Z",
			LTE: end.Format("2006-01-02") + "T23:59:59Z",
		},
	}
	if cq.PropertyType != "" {
		filters["PropertyType"] = cq.PropertyType
	}

	res, err := c.SearchProperties(ctx, Query{
		Filters: filters,
		Select:  StandardPropertyFields,
		OrderBy: "CloseDate desc",
		Top:     limit * 3, // over-fetch, the radius cut happens below
	})
	if err != nil {
		return nil, err
	}

	comps := make([]Property, 0, limit)
	for _, p := range res.Records {
		if p.Address.Latitude == nil || p.Address.Longitude == nil {
			continue
		}
		d := planarMiles(cq.Latitude, cq.Longitude, *p.Address.Latitude, *p.Address.Longitude)
		if d > radius {
			continue
		}
		d = math.Round(d*100) / 100
		p.DistanceMiles = &d
		comps = append(comps, p)
	}
	sort.SliceStable(comps, func(i, j int) bool {
		return *comps[i].DistanceMiles < *comps[j].DistanceMiles
	})
	if len(comps) > limit {
		comps = comps[:limit]
	}
	return comps, nil
}

// planarMiles approximates distance with a flat projection; one degree is
// close to 69 miles at listing-search scale.
func planarMiles(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := lat2 - lat1
	dlon := lon2 - lon1
	return math.Sqrt(dlat*dlat+dlon*dlon) * 69
}

// GetMarketStatistics aggregates one city's market over a trailing window.
// Two bounded queries: current actives for list-price stats, closed sales
// for sale-price, days-on-market and close/list ratio. Records missing a
// value stay out of that aggregate. Results are always computed live.
func (c *Client) GetMarketStatistics(ctx context.Context, city, propertyType string, daysBack int) (*MarketStatistics, error) {
	if daysBack <= 0 {
		daysBack = 90
	}
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)

	activeFilters := Filters{"StandardStatus": "Active", "City": city}
	if propertyType != "" {
		activeFilters["PropertyType"] = propertyType
	}
	activeRes, err := c.searchRaw(ctx, Query{
		Filters: activeFilters,
		Select:  []string{"ListPrice", "DaysOnMarket", "PropertyType"},
		Top:     500,
	})
	if err != nil {
		return nil, err
	}

	soldFilters := Filters{
		"StandardStatus": "Closed",
		"City":           city,
		"CloseDate": Range{
			GTE: start.Format("2006-01-02") + "T00:00:00Z",
			LTE: end.Format("2006-01-02") + "T23:59:59Z",
		},
	}
	if propertyType != "" {
		soldFilters["PropertyType"] = propertyType
	}
	soldRes, err := c.searchRaw(ctx, Query{
		Filters: soldFilters,
		Select:  []string{"ListPrice", "ClosePrice", "DaysOnMarket"},
		Top:     500,
	})
	if err != nil {
		return nil, err
	}

	ptype := propertyType
	if ptype == "" {
		ptype = "All"
	}
	stats := &MarketStatistics{
		City:         city,
		PropertyType: ptype,
		StartDate:    start.UTC().Format(time.RFC3339),
		EndDate:      end.UTC().Format(time.RFC3339),
	}

	active := activeRes.records(c.cfg.DataKey)
	stats.ActiveListings = len(active)
	if prices := collectValues(active, "ListPrice"); len(prices) > 0 {
		stats.AverageListPrice = mean(prices)
		stats.MedianListPrice = median(prices)
	}

	sold := soldRes.records(c.cfg.DataKey)
	stats.SoldProperties = len(sold)
	if prices := collectValues(sold, "ClosePrice"); len(prices) > 0 {
		stats.AverageSalePrice = mean(prices)
		stats.MedianSalePrice = median(prices)
	}
	if dom := collectValues(sold, "DaysOnMarket"); len(dom) > 0 {
		stats.AverageDOM = mean(dom)
	}
	ratios := make([]float64, 0, len(sold))
	for _, rec := range sold {
		cp := toFloat(rec["ClosePrice"])
		lp := toFloat(rec["ListPrice"])
		if cp != nil && *cp != 0 && lp != nil && *lp > 0 {
			ratios = append(ratios, *cp / *lp)
		}
	}
	if len(ratios) > 0 {
		stats.PriceToListRatio = mean(ratios)
	}
	return stats, nil
}

// SearchMembers queries the RESO Member resource for agents and brokers.
// Member payloads vary wildly across MLSes, so records come back raw.
func (c *Client) SearchMembers(ctx context.Context, filters Filters, selectFields []string) ([]map[string]any, error) {
	if !c.cfg.RESO {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, ErrNotRESOCompliant)
	}
	q := Query{Filters: filters, Select: selectFields}
	p, err := c.exec.doJSON(ctx, http.MethodGet, "Member", q.Params())
	if err != nil {
		return nil, err
	}
	return p.records(c.cfg.DataKey), nil
}

// GetMedia fetches the Media resource for one listing, ordered by the
// provider's Order field.
func (c *Client) GetMedia(ctx context.Context, listingKey string) ([]Media, error) {
	if !c.cfg.RESO {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, ErrNotRESOCompliant)
	}
	q := Query{
		Filters: Filters{"ResourceRecordKey": listingKey},
		OrderBy: "Order",
	}
	p, err := c.exec.doJSON(ctx, http.MethodGet, "Media", q.Params())
	if err != nil {
		return nil, err
	}
	return mediaFromRecords(p.records(c.cfg.DataKey), "MediaURL", "ShortDescription", "Order"), nil
}

// GetMetadata fetches the raw OData $metadata document. The payload is XML
// on most MLSes, so it comes back as bytes.
func (c *Client) GetMetadata(ctx context.Context) ([]byte, error) {
	if !c.cfg.RESO {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, ErrNotRESOCompliant)
	}
	return c.exec.do(ctx, http.MethodGet, c.cfg.ProbePath, nil)
}

// TestConnection probes the provider with its cheapest request. Any
// failure means false; this never returns an error.
func (c *Client) TestConnection(ctx context.Context) bool {
	var err error
	if c.cfg.RESO {
		_, err = c.GetMetadata(ctx)
	} else {
		params := url.Values{}
		params.Set("pagesize", "1")
		_, err = c.exec.do(ctx, http.MethodGet, c.cfg.ProbePath, params)
	}
	if err != nil {
		c.log.Warn("connection test failed", "provider", c.cfg.Name, "error", err)
		return false
	}
	return true
}

// ReplicateOptions tunes a replication walk.
type ReplicateOptions struct {
	Resource      string // default Property
	ModifiedSince time.Time
	PageSize      int // default provider page size
}

// Replicate walks a RESO resource in ModificationTimestamp order and hands
// each batch to fn. The walk stops on an empty page or when the provider
// stops advertising a next link; a callback error aborts it. Returns the
// number of records processed either way.
func (c *Client) Replicate(ctx context.Context, opts ReplicateOptions, fn func(batch []map[string]any) error) (int, error) {
	if !c.cfg.RESO {
		return 0, fmt.Errorf("%s: %w", c.cfg.Name, ErrNotRESOCompliant)
	}
	resource := opts.Resource
	if resource == "" {
		resource = "Property"
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.cfg.PageSize
	}

	filters := Filters{}
	if c.creds.ServerID != "" {
		filters["OriginatingSystemName"] = c.creds.ServerID
	}
	if !opts.ModifiedSince.IsZero() {
		filters["ModificationTimestamp"] = Range{GT: opts.ModifiedSince.UTC().Format(modificationStampLayout)}
	}

	total, skip := 0, 0
	for {
		q := Query{Filters: filters, OrderBy: "ModificationTimestamp", Top: pageSize, Skip: skip}
		p, err := c.exec.doJSON(ctx, http.MethodGet, resource, q.Params())
		if err != nil {
			return total, err
		}
		batch := p.records(c.cfg.DataKey)
		if len(batch) == 0 {
			break
		}
		if fn != nil {
			if err := fn(batch); err != nil {
				return total, err
			}
		}
		total += len(batch)
		skip += len(batch)
		c.log.Info("replication progress", "provider", c.cfg.Name, "resource", resource, "records", total)
		if !p.nextLink() {
			break
		}
	}
	return total, nil
}

// collectValues pulls non-null, non-zero numeric values for one field.
func collectValues(recs []map[string]any, field string) []float64 {
	out := make([]float64, 0, len(recs))
	for _, rec := range recs {
		if f := toFloat(rec[field]); f != nil && *f != 0 {
			out = append(out, *f)
		}
	}
	return out
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
