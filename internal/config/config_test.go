package config

import (
	"testing"
	"time"

	"github.com/voenmeh-bot/timetable-go/internal/parity"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port '8080', got '%s'", cfg.Port)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("Unexpected default redis url '%s'", cfg.RedisURL)
	}
	if cfg.RefreshInterval != 30*time.Minute {
		t.Errorf("Expected default refresh interval 30m, got %v", cfg.RefreshInterval)
	}
	if cfg.OutOfSemester != parity.PolicyExtrapolate {
		t.Errorf("Expected default out-of-semester policy extrapolate, got %v", cfg.OutOfSemester)
	}
	if cfg.FuzzyThreshold != 0.75 {
		t.Errorf("Expected default fuzzy threshold 0.75, got %v", cfg.FuzzyThreshold)
	}
	if cfg.BackupInterval != 6*time.Hour {
		t.Errorf("Expected default backup interval 6h, got %v", cfg.BackupInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("REFRESH_INTERVAL", "5m")
	t.Setenv("OUT_OF_SEMESTER_POLICY", "none")
	t.Setenv("FUZZY_THRESHOLD", "0.9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("Expected port '9999', got '%s'", cfg.Port)
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("Expected refresh interval 5m, got %v", cfg.RefreshInterval)
	}
	if cfg.OutOfSemester != parity.PolicyNone {
		t.Errorf("Expected policy none, got %v", cfg.OutOfSemester)
	}
	if cfg.FuzzyThreshold != 0.9 {
		t.Errorf("Expected fuzzy threshold 0.9, got %v", cfg.FuzzyThreshold)
	}
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	t.Setenv("OUT_OF_SEMESTER_POLICY", "sometimes")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject an unknown out-of-semester policy")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}, wantErr: false},
		{name: "empty port", mutate: func(c *Config) { c.Port = "" }, wantErr: true},
		{name: "empty redis url", mutate: func(c *Config) { c.RedisURL = "" }, wantErr: true},
		{name: "zero fetch timeout", mutate: func(c *Config) { c.FetchTimeout = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.FetchRetries = -1 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.FuzzyThreshold = 1.5 }, wantErr: true},
		{name: "zero refresh interval", mutate: func(c *Config) { c.RefreshInterval = 0 }, wantErr: true},
		{name: "negative retention", mutate: func(c *Config) { c.BackupRetention = -1 }, wantErr: true},
		{name: "zero rate limit tokens", mutate: func(c *Config) { c.RateLimitTokens = 0 }, wantErr: true},
		{name: "zero refill rate", mutate: func(c *Config) { c.RateLimitRefillRate = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() should have failed")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() failed: %v", err)
			}
		})
	}
}
