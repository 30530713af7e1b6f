package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetCreatesDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	SetConfigPath(tmpDir)
	Reload()

	cfg := Get()

	if cfg.Port != "8181" {
		t.Errorf("expected default port 8181, got %s", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.Provider.Name != "torbox" {
		t.Errorf("expected default provider torbox, got %s", cfg.Provider.Name)
	}
	if cfg.Provider.Host != "https://api.torbox.app/v1" {
		t.Errorf("unexpected default provider host: %s", cfg.Provider.Host)
	}
	if cfg.Availability.BatchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", cfg.Availability.BatchSize)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "config.json")); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
}

func TestLoadExistingConfig(t *testing.T) {
	tmpDir := t.TempDir()

	raw := map[string]any{
		"port":      "9090",
		"log_level": "debug",
		"url_base":  "resolvarr",
		"provider": map[string]any{
			"api_key":    "secret",
			"rate_limit": "2/second",
		},
		"availability": map[string]any{
			"batch_size":             25,
			"recheck_uncached_after": "30m",
		},
	}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	SetConfigPath(tmpDir)
	Reload()
	cfg := Get()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.Provider.APIKey != "secret" {
		t.Errorf("expected api key to load, got %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.Host != "https://api.torbox.app/v1" {
		t.Errorf("expected host default to apply, got %s", cfg.Provider.Host)
	}
	if cfg.URLBase != "/resolvarr/" {
		t.Errorf("expected url base normalized to /resolvarr/, got %s", cfg.URLBase)
	}
	if cfg.Availability.BatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", cfg.Availability.BatchSize)
	}
	if cfg.Availability.RecheckUncachedAfter != "30m" {
		t.Errorf("expected recheck window 30m, got %s", cfg.Availability.RecheckUncachedAfter)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	SetConfigPath(tmpDir)
	Reload()

	cfg := Get()
	cfg.Provider.APIKey = "roundtrip-key"
	cfg.Availability.BatchSize = 50
	if err := cfg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	Reload()
	got := Get()
	if got.Provider.APIKey != "roundtrip-key" {
		t.Errorf("expected saved api key to survive reload, got %q", got.Provider.APIKey)
	}
	if got.Availability.BatchSize != 50 {
		t.Errorf("expected saved batch size to survive reload, got %d", got.Availability.BatchSize)
	}
}

func TestRecheckWindow(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"empty falls back", "", time.Hour},
		{"invalid falls back", "not-a-duration", time.Hour},
		{"negative falls back", "-5m", time.Hour},
		{"valid duration", "30m", 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Availability{RecheckUncachedAfter: tt.value}
			if got := a.RecheckWindow(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{
			name: "torbox provider",
			cfg:  Config{Provider: Provider{Name: "torbox", Host: "https://api.torbox.app/v1"}},
		},
		{
			name: "case insensitive provider name",
			cfg:  Config{Provider: Provider{Name: "TorBox", Host: "https://api.torbox.app/v1"}},
		},
		{
			name:        "unsupported provider",
			cfg:         Config{Provider: Provider{Name: "realdebrid", Host: "https://api.real-debrid.com"}},
			expectError: true,
		},
		{
			name:        "missing host",
			cfg:         Config{Provider: Provider{Name: "torbox"}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(&tt.cfg)
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
