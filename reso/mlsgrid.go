package reso

import (
	"context"
	"log/slog"
	"sort"
)

// mlsGridExpandCap is the largest page MLS Grid serves when a query
// expands related resources.
const mlsGridExpandCap = 1000

// KnownOriginatingSystems lists MLS Grid member systems commonly seen in
// the wild. The authoritative set comes from the account's data license.
var KnownOriginatingSystems = []string{
	"mls_pin", // Midwest Real Estate Data
	"actris",  // Austin Board of REALTORS
	"harmls",  // Houston Association of REALTORS
	"ntreis",  // North Texas Real Estate Information Systems
	"maris",   // MetroList
	"rmls",    // Regional Multiple Listing Service (Portland)
	"gamls",   // Georgia MLS
	"fmls",    // First Multiple Listing Service (Atlanta)
	"bright",  // Bright MLS (Mid-Atlantic)
	"crmls",   // California Regional MLS
}

// NewMLSGrid builds a client for the MLS Grid API. Every MLS Grid query
// must name an originating system, so a missing server ID is almost
// always a misconfiguration.
func NewMLSGrid(creds Credentials, log *slog.Logger) (*Client, error) {
	cfg, _ := BuiltinConfig(ProviderMLSGrid)
	c, err := NewClient(cfg, creds, log)
	if err != nil {
		return nil, err
	}
	if creds.ServerID == "" {
		c.log.Warn("mlsgrid client has no originating system, queries will likely be rejected")
	}
	return c, nil
}

// prepareMLSGrid stamps the originating system onto every search and
// clamps pages that expand related resources.
func (c *Client) prepareMLSGrid(q *Query) {
	if c.creds.ServerID != "" {
		if _, ok := q.Filters["OriginatingSystemName"]; !ok {
			q.Filters["OriginatingSystemName"] = c.creds.ServerID
		}
	}
	if len(q.Expand) > 0 && q.Top > mlsGridExpandCap {
		c.log.Warn("page size clamped, provider caps expanded queries",
			"provider", c.cfg.Name, "requested", q.Top, "cap", mlsGridExpandCap)
		q.Top = mlsGridExpandCap
	}
}

// GetPropertyTypes samples the feed and reports the distinct property
// types it carries, sorted. Useful for populating search filters.
func (c *Client) GetPropertyTypes(ctx context.Context) ([]string, error) {
	res, err := c.searchRaw(ctx, Query{
		Select: []string{"PropertyType"},
		Top:    mlsGridExpandCap,
	})
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, rec := range res.records(c.cfg.DataKey) {
		if s := toString(rec["PropertyType"]); s != nil && *s != "" {
			seen[*s] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}
