package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"droplet/core/state"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.NetworkName != DefaultNetworkName {
		t.Fatalf("network = %q", cfg.NetworkName)
	}
	if cfg.TTLLimits() != state.DefaultTTLLimits {
		t.Fatalf("ttl limits = %+v", cfg.TTLLimits())
	}
	if cfg.KeystorePath != filepath.Join(filepath.Dir(path), "owner.keystore") {
		t.Fatalf("keystore path = %q", cfg.KeystorePath)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *reloaded != *cfg {
		t.Fatalf("reloaded config differs: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `DataDir = "./data"
Backend = "bolt"
NetworkName = "testnet"
Environment = "staging"
MinTTL = 10
MaxTTL = 500
LogFile = "/var/log/droplet.log"
LogLevel = "warn"
MetricsNamespace = "custody"
MetricsFile = "/var/lib/node_exporter/droplet.prom"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "./data" || cfg.NetworkName != "testnet" || cfg.Environment != "staging" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.TTLLimits() != (state.TTLLimits{Min: 10, Max: 500}) {
		t.Fatalf("ttl limits = %+v", cfg.TTLLimits())
	}
	level, err := cfg.Level()
	if err != nil || level != slog.LevelWarn {
		t.Fatalf("level = %v, %v", level, err)
	}
	if cfg.MetricsNamespace != "custody" || cfg.MetricsFile == "" || cfg.LogFile == "" {
		t.Fatalf("unexpected observability settings %+v", cfg)
	}
	if cfg.Backend != "bolt" {
		t.Fatalf("backend = %q", cfg.Backend)
	}
	if cfg.KeystorePath != filepath.Join(dir, "owner.keystore") {
		t.Fatalf("keystore path = %q", cfg.KeystorePath)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("DataDir = \"./data\"\nValidatorKey = \"abc\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"ok", Config{DataDir: "d", MinTTL: 1, MaxTTL: 1}, nil},
		{"missing data dir", Config{MinTTL: 1, MaxTTL: 2}, ErrMissingDataDir},
		{"zero min", Config{DataDir: "d", MinTTL: 0, MaxTTL: 2}, ErrInvalidTTL},
		{"min above max", Config{DataDir: "d", MinTTL: 3, MaxTTL: 2}, ErrInvalidTTL},
		{"bad backend", Config{DataDir: "d", Backend: "rocksdb", MinTTL: 1, MaxTTL: 2}, ErrInvalidBackend},
		{"bad level", Config{DataDir: "d", MinTTL: 1, MaxTTL: 2, LogLevel: "loud"}, ErrInvalidLogLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
