package reso

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry fronts a set of configured providers behind one surface. Each
// client is built lazily on first use and cached; switching the selected
// provider never touches the others. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	log     *slog.Logger
	creds   map[string]Credentials
	configs map[string]ProviderConfig
	clients map[string]*Client
	current string
}

// NewRegistry wires up a registry over the given per-provider credentials.
// The selected provider defaults to the first configured builtin. Nothing
// is constructed or dialed yet.
func NewRegistry(creds map[string]Credentials, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		log:     log,
		creds:   map[string]Credentials{},
		configs: map[string]ProviderConfig{},
		clients: map[string]*Client{},
	}
	for name, c := range creds {
		r.creds[name] = c
	}
	for _, name := range BuiltinProviders {
		if _, ok := r.creds[name]; ok {
			r.current = name
			break
		}
	}
	return r
}

// SetConfig overrides the wire config for one provider, keyed by its
// Name. Registering a config also registers the provider itself, so test
// servers and self-hosted endpoints need no builtin entry.
func (r *Registry) SetConfig(cfg ProviderConfig, creds Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.creds[cfg.Name] = creds
	delete(r.clients, cfg.Name)
	if r.current == "" {
		r.current = cfg.Name
	}
}

// Providers reports the configured provider names in builtin order, with
// any custom providers after.
func (r *Registry) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.creds))
	for _, name := range BuiltinProviders {
		if _, ok := r.creds[name]; ok {
			out = append(out, name)
		}
	}
	var custom []string
	for name := range r.creds {
		if _, builtin := BuiltinConfig(name); !builtin {
			custom = append(custom, name)
		}
	}
	sort.Strings(custom)
	return append(out, custom...)
}

// UseProvider switches the selected provider. The target only needs to be
// configured; its client is still built lazily on the next call.
func (r *Registry) UseProvider(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creds[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrProviderNotConfigured)
	}
	r.current = name
	return nil
}

// Provider reports the currently selected provider name.
func (r *Registry) Provider() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Client returns the cached client for a provider, building it on first
// use. Credential problems surface here, before any request is made.
func (r *Registry) Client(name string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clientLocked(name)
}

func (r *Registry) clientLocked(name string) (*Client, error) {
	if c, ok := r.clients[name]; ok {
		return c, nil
	}
	creds, ok := r.creds[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrProviderNotConfigured)
	}
	cfg, ok := r.configs[name]
	if !ok {
		cfg, ok = BuiltinConfig(name)
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrProviderNotConfigured)
		}
	}
	c, err := NewClient(cfg, creds, r.log)
	if err != nil {
		return nil, err
	}
	r.clients[name] = c
	r.log.Info("provider client ready", "provider", name)
	return c, nil
}

func (r *Registry) selected() (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == "" {
		return nil, fmt.Errorf("no provider selected: %w", ErrProviderNotConfigured)
	}
	return r.clientLocked(r.current)
}

// Search runs a property search against the selected provider. No
// matches is an empty result, not an error.
func (r *Registry) Search(ctx context.Context, q Query) (*SearchResult, error) {
	c, err := r.selected()
	if err != nil {
		return nil, err
	}
	return c.SearchProperties(ctx, q)
}

// GetProperty fetches one listing by key from the selected provider.
func (r *Registry) GetProperty(ctx context.Context, listingKey string, expand ...string) (*Property, error) {
	c, err := r.selected()
	if err != nil {
		return nil, err
	}
	return c.GetProperty(ctx, listingKey, expand...)
}

// GetComparables fetches closed sales near a point from the selected
// provider.
func (r *Registry) GetComparables(ctx context.Context, cq ComparablesQuery) ([]Property, error) {
	c, err := r.selected()
	if err != nil {
		return nil, err
	}
	return c.GetComparableSales(ctx, cq)
}

// GetMarketStats computes market statistics for a city from the selected
// provider.
func (r *Registry) GetMarketStats(ctx context.Context, city, propertyType string, daysBack int) (*MarketStatistics, error) {
	c, err := r.selected()
	if err != nil {
		return nil, err
	}
	return c.GetMarketStatistics(ctx, city, propertyType, daysBack)
}

// TestConnections probes every configured provider. Providers whose
// client cannot even be constructed count as down.
func (r *Registry) TestConnections(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	for _, name := range r.Providers() {
		c, err := r.Client(name)
		if err != nil {
			r.log.Warn("provider unavailable", "provider", name, "error", err)
			out[name] = false
			continue
		}
		out[name] = c.TestConnection(ctx)
	}
	return out
}
