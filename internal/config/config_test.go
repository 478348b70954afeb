package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Models.Backends = []ModelBackendConfig{
		{Name: "alpha", BaseURL: "https://api.alpha.example", Model: "alpha-large"},
		{Name: "beta", BaseURL: "https://api.beta.example", Model: "beta-pro"},
	}
	cfg.Chain.RelayURL = "https://relay.example"
	cfg.Chain.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	return cfg
}

func TestValidateAcceptsDefaultsWithBackends(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "batch" },
			wantSub: "unknown mode",
		},
		{
			name:    "too few backends",
			mutate:  func(c *Config) { c.Models.Backends = c.Models.Backends[:1] },
			wantSub: "at least 2 backends",
		},
		{
			name: "duplicate backend names",
			mutate: func(c *Config) {
				c.Models.Backends[1].Name = c.Models.Backends[0].Name
			},
			wantSub: "duplicate backend name",
		},
		{
			name:    "weights must sum to one",
			mutate:  func(c *Config) { c.Oracle.WeightConsensus = 0.9 },
			wantSub: "weights must sum to 1",
		},
		{
			name:    "agreement threshold out of range",
			mutate:  func(c *Config) { c.Oracle.AgreementThreshold = 1.5 },
			wantSub: "agreement_threshold",
		},
		{
			name: "finalization window must exceed heartbeat",
			mutate: func(c *Config) {
				c.Oracle.FinalizationWindow = duration{5 * time.Minute}
			},
			wantSub: "finalization_window",
		},
		{
			name: "production webhook needs secret",
			mutate: func(c *Config) {
				c.Webhook.Production = true
				c.Webhook.Secret = ""
			},
			wantSub: "webhook: secret",
		},
		{
			name:    "bad server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantSub: "server: port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("Validate() = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestServerOnlyModeSkipsBackendRequirement(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	cfg.Chain.RelayURL = "https://relay.example"
	cfg.Chain.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil for server mode without backends", err)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := duration{90 * time.Second}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}

	var back duration
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText(%q) error = %v", text, err)
	}
	if back.Duration != d.Duration {
		t.Fatalf("round trip = %v, want %v", back.Duration, d.Duration)
	}
}
