// Package config loads the node's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"BandwidthBazaar/internal/ledger"
)

type Config struct {
	LogLevel  string        `yaml:"log_level"` // debug, info, warn or error
	DataDir   string        `yaml:"data_dir"`
	KeyPath   string        `yaml:"key_path"`  // generated when missing; empty means ephemeral
	Bootstrap bool          `yaml:"bootstrap"` // initialize the ledger with the node key
	HTTP      HTTPConfig    `yaml:"http"`
	QUIC      QUICConfig    `yaml:"quic"`
	Ledger    LedgerConfig  `yaml:"ledger"`
	Replay    ReplayConfig  `yaml:"replay"`
	Storage   StorageConfig `yaml:"storage"`
	History   HistoryConfig `yaml:"history"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// QUICConfig enables the QUIC transaction ingress.
type QUICConfig struct {
	Listen string `yaml:"listen"` // empty disables the ingress
}

// LedgerConfig holds the rates applied when this node executes initialize.
// They are read once, by that transaction, and stored in the aggregate.
// Once the ledger exists, changing them has no effect.
type LedgerConfig struct {
	PlatformFeeBPS uint16 `yaml:"platform_fee_bps"` // read at initialize only
	TokensPerGB    uint64 `yaml:"tokens_per_gb"`    // read at initialize only
	USDCPerToken   uint64 `yaml:"usdc_per_token"`   // scaled by 1,000,000; read at initialize only
}

type ReplayConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
}

type StorageConfig struct {
	SyncWrites     bool `yaml:"sync_writes"`      // fsync every batch
	SyncIntervalMS int  `yaml:"sync_interval_ms"` // periodic WAL sync when sync_writes is off
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // defaults to <data_dir>/journal.sqlite
}

// Default returns the configuration used when no file is given.
// Load unmarshals over it, so omitted keys keep these values.
func Default() *Config {
	params := ledger.DefaultParams()

	return &Config{
		LogLevel: "info",
		DataDir:  "./data",
		HTTP:     HTTPConfig{Listen: ":8080"},
		Ledger: LedgerConfig{
			PlatformFeeBPS: params.PlatformFeeBPS,
			TokensPerGB:    params.TokensPerGB,
			USDCPerToken:   params.USDCPerToken,
		},
		Replay:  ReplayConfig{WindowSeconds: 300},
		Storage: StorageConfig{SyncWrites: true},
		History: HistoryConfig{Enabled: true},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file:\n%w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file:\n%w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}

	if err := c.LedgerParams().Validate(); err != nil {
		return fmt.Errorf("ledger:\n%w", err)
	}

	if c.Replay.WindowSeconds <= 0 {
		return fmt.Errorf("replay.window_seconds must be positive, got %d", c.Replay.WindowSeconds)
	}

	if c.Storage.SyncIntervalMS < 0 {
		return fmt.Errorf("storage.sync_interval_ms must not be negative, got %d", c.Storage.SyncIntervalMS)
	}

	return nil
}

// LedgerParams returns the initialize parameters. An initialized ledger
// keeps the rates stored in its aggregate and ignores these.
func (c *Config) LedgerParams() ledger.Params {
	return ledger.Params{
		PlatformFeeBPS: c.Ledger.PlatformFeeBPS,
		TokensPerGB:    c.Ledger.TokensPerGB,
		USDCPerToken:   c.Ledger.USDCPerToken,
	}
}

// ReplayWindow returns the accepted nonce drift.
func (c *Config) ReplayWindow() time.Duration {
	return time.Duration(c.Replay.WindowSeconds) * time.Second
}

// StoragePath returns the Pebble directory.
func (c *Config) StoragePath() string {
	return filepath.Join(c.DataDir, "ledger")
}

// HistoryPath returns the journal database path.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}

	return filepath.Join(c.DataDir, "journal.sqlite")
}

// SyncInterval returns the periodic sync interval, zero when disabled.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Storage.SyncIntervalMS) * time.Millisecond
}
