package reso

import (
	"time"
)

// Credentials is what the settings layer hands us per provider. ServerID
// doubles as the Bridge X-Server-ID header and the originating system name
// injected into RESO filters.
type Credentials struct {
	APIKey   string
	ServerID string
}

// ProviderConfig describes one upstream property-data API. AuthFormat uses
// a {key} placeholder, so "Bearer {key}" is standard bearer auth and "{key}"
// sends the key verbatim in AuthHeader.
type ProviderConfig struct {
	Name         string
	BaseURL      string
	AuthHeader   string            // default Authorization
	AuthFormat   string            // default "Bearer {key}"
	Headers      map[string]string // static headers on every request
	RateInterval time.Duration     // minimum spacing between requests
	Timeout      time.Duration
	MaxRetries   int // total attempts, not extra tries
	PageSize     int
	DataKey      string // envelope key holding the record list
	RESO         bool   // speaks RESO Web API / OData
	SearchPath   string
	DetailPath   string // printf verb receives the listing key
	ProbePath    string // connection test target
	FieldMap     FieldMap
}

const (
	defaultRateInterval = 500 * time.Millisecond
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 3
	defaultPageSize     = 100
)

func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.AuthHeader == "" {
		c.AuthHeader = "Authorization"
	}
	if c.AuthFormat == "" {
		c.AuthFormat = "Bearer {key}"
	}
	if c.RateInterval == 0 {
		c.RateInterval = defaultRateInterval
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}
	if c.DataKey == "" {
		if c.RESO {
			c.DataKey = "value"
		} else {
			c.DataKey = "data"
		}
	}
	if c.SearchPath == "" {
		if c.RESO {
			c.SearchPath = "Property"
		} else {
			c.SearchPath = "properties"
		}
	}
	if c.DetailPath == "" {
		if c.RESO {
			c.DetailPath = "Property('%s')"
		} else {
			c.DetailPath = "properties/%s"
		}
	}
	if c.ProbePath == "" {
		if c.RESO {
			c.ProbePath = "$metadata"
		} else {
			c.ProbePath = c.SearchPath
		}
	}
	if c.FieldMap == nil {
		if c.RESO {
			c.FieldMap = RESOFieldMap
		} else {
			c.FieldMap = genericFieldMap
		}
	}
	return c
}

// BuiltinConfig returns the shipped config for a known provider name.
func BuiltinConfig(name string) (ProviderConfig, bool) {
	switch name {
	case ProviderBridge:
		return ProviderConfig{
			Name:    ProviderBridge,
			BaseURL: "https://api.bridgedataoutput.com/api/v2",
			Headers: map[string]string{
				"Accept":       "application/json",
				"Content-Type": "application/json",
			},
			RateInterval: 500 * time.Millisecond, // 2 req/s max
			RESO:         true,
		}, true
	case ProviderMLSGrid:
		return ProviderConfig{
			Name:    ProviderMLSGrid,
			BaseURL: "https://api.mlsgrid.com/v2",
			Headers: map[string]string{
				"Accept":       "application/json",
				"Content-Type": "application/json",
				"User-Agent":   "mls-api/1.0",
			},
			RateInterval: 500 * time.Millisecond,
			RESO:         true,
		}, true
	case ProviderRentSpree:
		return ProviderConfig{
			Name:         ProviderRentSpree,
			BaseURL:      "https://api.rentspree.com/v1",
			AuthHeader:   "X-API-Key",
			AuthFormat:   "{key}",
			Headers:      map[string]string{"Accept": "application/json"},
			RateInterval: 500 * time.Millisecond,
			DataKey:      "data",
			SearchPath:   "listings",
		}, true
	case ProviderEstated:
		return ProviderConfig{
			Name:         ProviderEstated,
			BaseURL:      "https://apis.estated.com/v4",
			Headers:      map[string]string{"Accept": "application/json"},
			RateInterval: time.Second,
			DataKey:      "data",
			SearchPath:   "property",
			DetailPath:   "property/%s",
			FieldMap:     EstatedFieldMap,
		}, true
	case ProviderATTOM:
		return ProviderConfig{
			Name:         ProviderATTOM,
			BaseURL:      "https://api.gateway.attomdata.com/propertyapi/v1.0.0",
			AuthHeader:   "apikey",
			AuthFormat:   "{key}",
			Headers:      map[string]string{"Accept": "application/json"},
			RateInterval: time.Second,
			DataKey:      "property",
			SearchPath:   "property/search",
			FieldMap:     ATTOMFieldMap,
		}, true
	}
	return ProviderConfig{}, false
}

// Known provider names.
const (
	ProviderBridge    = "bridge"
	ProviderMLSGrid   = "mlsgrid"
	ProviderRentSpree = "rentspree"
	ProviderEstated   = "estated"
	ProviderATTOM     = "attom"
)

// BuiltinProviders lists every provider BuiltinConfig knows, in the order
// the facade prefers them for statistics.
var BuiltinProviders = []string{
	ProviderBridge, ProviderMLSGrid, ProviderATTOM, ProviderEstated, ProviderRentSpree,
}
