package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithCredentials(t *testing.T) {
	t.Setenv("FLEX_INTEGRATION_CLIENT_ID", "test-id")
	t.Setenv("FLEX_INTEGRATION_CLIENT_SECRET", "test-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected config to load with credentials, got error: %v", err)
	}

	if cfg.API.ClientID != "test-id" || cfg.API.ClientSecret != "test-secret" {
		t.Errorf("credentials not bound, got %q/%q", cfg.API.ClientID, cfg.API.ClientSecret)
	}
	if cfg.API.BaseURL != "https://flex-integ-api.sharetribe.com" {
		t.Errorf("expected default base URL, got '%s'", cfg.API.BaseURL)
	}
	if cfg.Poller.BusyWait != 250*time.Millisecond || cfg.Poller.IdleWait != 10*time.Second {
		t.Errorf("unexpected default pacing %s/%s", cfg.Poller.BusyWait, cfg.Poller.IdleWait)
	}
	if cfg.Poller.PageSize != 100 {
		t.Errorf("expected page size 100, got %d", cfg.Poller.PageSize)
	}
	if len(cfg.Poller.EventTypes) != 2 || cfg.Poller.EventTypes[0] != "listing/created" {
		t.Errorf("unexpected default event types %v", cfg.Poller.EventTypes)
	}
	if cfg.Cursor.Path != "./notify-new-listings.state" {
		t.Errorf("unexpected cursor path %q", cfg.Cursor.Path)
	}
	if got := cfg.Bulk.Policy(); got.BaseInterval != 600*time.Millisecond || got.InitialPenalty != time.Minute {
		t.Errorf("unexpected bulk policy %+v", got)
	}
}

func TestLoadWithoutCredentials(t *testing.T) {
	t.Setenv("FLEX_INTEGRATION_CLIENT_ID", "")
	t.Setenv("FLEX_INTEGRATION_CLIENT_SECRET", "")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when credentials are missing")
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("FLEX_INTEGRATION_CLIENT_ID", "file-test")
	t.Setenv("FLEX_INTEGRATION_CLIENT_SECRET", "file-secret")
	t.Setenv("FLEX_POLLER_PAGE_SIZE", "25")

	path := filepath.Join(t.TempDir(), "flex.yaml")
	yaml := `
api:
  base_url: http://localhost:8080
poller:
  idle_wait: 3s
cursor:
  backend: sqlite
  path: /tmp/cursor.db
notify:
  enabled: true
  topic: listings
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8080" {
		t.Errorf("base url from file not applied: %q", cfg.API.BaseURL)
	}
	if cfg.Poller.IdleWait != 3*time.Second {
		t.Errorf("expected idle wait 3s, got %s", cfg.Poller.IdleWait)
	}
	if cfg.Poller.PageSize != 25 {
		t.Errorf("env should override page size, got %d", cfg.Poller.PageSize)
	}
	if opts := cfg.Cursor.Options(); opts.Backend != "sqlite" || opts.Path != "/tmp/cursor.db" {
		t.Errorf("unexpected cursor options %+v", opts)
	}
	if !cfg.Notify.Enabled || cfg.Notify.Priority != "default" {
		t.Errorf("unexpected notify config %+v", cfg.Notify)
	}
}

func TestLoadRejectsBadNotifyConfig(t *testing.T) {
	t.Setenv("FLEX_INTEGRATION_CLIENT_ID", "id")
	t.Setenv("FLEX_INTEGRATION_CLIENT_SECRET", "secret")

	path := filepath.Join(t.TempDir(), "flex.yaml")
	if err := os.WriteFile(path, []byte("notify:\n  enabled: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for notify without topic")
	}
}

func TestLoadRejectsUnsafeBulkPolicy(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero penalty without jitter", map[string]string{"FLEX_BULK_INITIAL_PENALTY": "0s", "FLEX_BULK_MAX_JITTER": "0s"}},
		{"negative penalty", map[string]string{"FLEX_BULK_INITIAL_PENALTY": "-1s"}},
		{"negative jitter", map[string]string{"FLEX_BULK_MAX_JITTER": "-1s"}},
		{"cap below initial penalty", map[string]string{"FLEX_BULK_MAX_PENALTY": "10s"}},
		{"negative base interval", map[string]string{"FLEX_BULK_BASE_INTERVAL": "-1ms"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FLEX_INTEGRATION_CLIENT_ID", "test-id")
			t.Setenv("FLEX_INTEGRATION_CLIENT_SECRET", "test-secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := Load(""); err == nil {
				t.Error("expected bulk policy to be rejected")
			}
		})
	}
}

func TestLoadAcceptsCappedBulkPolicy(t *testing.T) {
	t.Setenv("FLEX_INTEGRATION_CLIENT_ID", "test-id")
	t.Setenv("FLEX_INTEGRATION_CLIENT_SECRET", "test-secret")
	t.Setenv("FLEX_BULK_MAX_PENALTY", "10m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bulk.MaxPenalty != 10*time.Minute {
		t.Errorf("expected 10m cap, got %s", cfg.Bulk.MaxPenalty)
	}
}

func TestLoadSandboxConfig(t *testing.T) {
	t.Setenv("SANDBOX_PORT", "9999")
	t.Setenv("SANDBOX_COMMAND_RATE", "2.5")

	cfg, err := LoadSandboxConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9999" || cfg.CommandRate != 2.5 || cfg.CommandBurst != 10 {
		t.Errorf("unexpected sandbox config %+v", cfg)
	}

	t.Setenv("SANDBOX_COMMAND_BURST", "lots")
	if _, err := LoadSandboxConfig(); err == nil {
		t.Error("expected error for non-numeric burst")
	}
}

func TestLoadSandboxConfig_MissingSeedFile(t *testing.T) {
	t.Setenv("SANDBOX_SEED_FILE", filepath.Join(t.TempDir(), "missing.jsonl"))
	if _, err := LoadSandboxConfig(); err == nil {
		t.Error("expected error for a missing seed file")
	}
}
