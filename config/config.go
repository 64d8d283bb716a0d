package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"droplet/core/state"
	"droplet/storage"
)

const (
	DefaultNetworkName      = "droplet-local"
	DefaultMetricsNamespace = "droplet"
)

var (
	ErrInvalidTTL      = errors.New("config: MinTTL must be positive and not exceed MaxTTL")
	ErrMissingDataDir  = errors.New("config: DataDir must be set")
	ErrInvalidLogLevel = errors.New("config: unknown LogLevel")
	ErrInvalidBackend  = errors.New("config: Backend must be leveldb or bolt")
)

type Config struct {
	DataDir          string `toml:"DataDir"`
	Backend          string `toml:"Backend"`
	NetworkName      string `toml:"NetworkName"`
	Environment      string `toml:"Environment"`
	KeystorePath     string `toml:"KeystorePath"`
	MinTTL           uint32 `toml:"MinTTL"`
	MaxTTL           uint32 `toml:"MaxTTL"`
	LogFile          string `toml:"LogFile"`
	LogLevel         string `toml:"LogLevel"`
	MetricsNamespace string `toml:"MetricsNamespace"`
	// MetricsFile, when set, receives a Prometheus text exposition of the
	// process metrics after every command.
	MetricsFile string `toml:"MetricsFile,omitempty"`
	// TraceEndpoint is an OTLP/HTTP collector receiving invocation spans.
	TraceEndpoint string `toml:"TraceEndpoint,omitempty"`
	TraceInsecure bool   `toml:"TraceInsecure,omitempty"`
	TraceHeaders  string `toml:"TraceHeaders,omitempty"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}

	cfg.applyDefaults(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults(configPath string) {
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = DefaultNetworkName
	}
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = storage.BackendLevelDB
	}
	if strings.TrimSpace(c.MetricsNamespace) == "" {
		c.MetricsNamespace = DefaultMetricsNamespace
	}
	if c.MinTTL == 0 && c.MaxTTL == 0 {
		c.MinTTL = state.DefaultTTLLimits.Min
		c.MaxTTL = state.DefaultTTLLimits.Max
	}
	if strings.TrimSpace(c.KeystorePath) == "" {
		c.KeystorePath = defaultKeystorePath(configPath)
	}
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return ErrMissingDataDir
	}
	switch c.Backend {
	case "", storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Backend)
	}
	if c.MinTTL == 0 || c.MinTTL > c.MaxTTL {
		return fmt.Errorf("%w: MinTTL=%d MaxTTL=%d", ErrInvalidTTL, c.MinTTL, c.MaxTTL)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// TTLLimits returns the instance lifetime bounds for the host.
func (c *Config) TTLLimits() state.TTLLimits {
	return state.TTLLimits{Min: c.MinTTL, Max: c.MaxTTL}
}

// Level parses LogLevel. An empty value means info.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	raw := strings.TrimSpace(c.LogLevel)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w %q", ErrInvalidLogLevel, raw)
	}
	return level, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:          "./droplet-data",
		Backend:          storage.BackendLevelDB,
		NetworkName:      DefaultNetworkName,
		Environment:      "local",
		KeystorePath:     defaultKeystorePath(path),
		MinTTL:           state.DefaultTTLLimits.Min,
		MaxTTL:           state.DefaultTTLLimits.Max,
		LogLevel:         "info",
		MetricsNamespace: DefaultMetricsNamespace,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
