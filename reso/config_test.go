package reso

import (
	"testing"
	"time"
)

func TestWithDefaultsRESO(t *testing.T) {
	cfg := ProviderConfig{Name: "x", RESO: true}.withDefaults()
	if cfg.DataKey != "value" {
		t.Errorf("DataKey = %q", cfg.DataKey)
	}
	if cfg.SearchPath != "Property" || cfg.DetailPath != "Property('%s')" {
		t.Errorf("paths = %q / %q", cfg.SearchPath, cfg.DetailPath)
	}
	if cfg.ProbePath != "$metadata" {
		t.Errorf("ProbePath = %q", cfg.ProbePath)
	}
	if cfg.RateInterval != 500*time.Millisecond || cfg.Timeout != 30*time.Second {
		t.Errorf("timing defaults = %s / %s", cfg.RateInterval, cfg.Timeout)
	}
	if cfg.MaxRetries != 3 || cfg.PageSize != 100 {
		t.Errorf("retry/page defaults = %d / %d", cfg.MaxRetries, cfg.PageSize)
	}
}

func TestWithDefaultsPlain(t *testing.T) {
	cfg := ProviderConfig{Name: "x"}.withDefaults()
	if cfg.DataKey != "data" {
		t.Errorf("DataKey = %q", cfg.DataKey)
	}
	if cfg.SearchPath != "properties" || cfg.DetailPath != "properties/%s" {
		t.Errorf("paths = %q / %q", cfg.SearchPath, cfg.DetailPath)
	}
	if cfg.ProbePath != "properties" {
		t.Errorf("ProbePath = %q, want the search path", cfg.ProbePath)
	}
}

func TestBuiltinConfigs(t *testing.T) {
	for _, name := range BuiltinProviders {
		cfg, ok := BuiltinConfig(name)
		if !ok {
			t.Fatalf("no builtin config for %q", name)
		}
		if cfg.Name != name || cfg.BaseURL == "" {
			t.Errorf("%s: incomplete config %+v", name, cfg)
		}
	}
	if _, ok := BuiltinConfig("zillow"); ok {
		t.Error("unknown provider reported as builtin")
	}

	attom, _ := BuiltinConfig(ProviderATTOM)
	if attom.withDefaults().AuthHeader != "apikey" {
		t.Errorf("attom auth header = %q", attom.AuthHeader)
	}
	if attom.DataKey != "property" {
		t.Errorf("attom data key = %q", attom.DataKey)
	}
	bridge, _ := BuiltinConfig(ProviderBridge)
	if !bridge.RESO {
		t.Error("bridge not marked RESO compliant")
	}
}
