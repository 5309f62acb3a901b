package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"

	"BandwidthBazaar/internal/config"
)

// Config holds the node configuration: the YAML file with command-line
// overrides applied, plus options that only make sense as flags.
type Config struct {
	*config.Config

	// ConfigPath is the YAML file the settings were loaded from.
	ConfigPath string

	// SnapshotIn restores a snapshot file into an empty store before starting.
	SnapshotIn string

	// SnapshotOut writes a snapshot file and exits without serving.
	SnapshotOut string

	// PrivateKey is the node's Ed25519 signing key.
	PrivateKey ed25519.PrivateKey
}

// parseFlags parses command-line flags, loads the config file they name,
// and applies every explicitly set flag over the file values.
func parseFlags(args []string) (*Config, error) {
	fs := flag.NewFlagSet("node", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.ConfigPath, "config", "", "YAML config file path")
	fs.StringVar(&cfg.SnapshotIn, "snapshot-in", "", "Restore this snapshot file into an empty store")
	fs.StringVar(&cfg.SnapshotOut, "snapshot-out", "", "Write a snapshot file and exit")

	dataDir := fs.String("data", "", "Data directory path")
	httpAddr := fs.String("http", "", "HTTP API address")
	quicAddr := fs.String("quic", "", "QUIC transaction ingress address (empty disables)")
	keyPath := fs.String("key", "", "Ed25519 private key path (generates new if missing)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	bootstrap := fs.Bool("bootstrap", false, "Initialize the ledger with the node key as authority")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fileCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config:\n%w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			fileCfg.DataDir = *dataDir
		case "http":
			fileCfg.HTTP.Listen = *httpAddr
		case "quic":
			fileCfg.QUIC.Listen = *quicAddr
		case "key":
			fileCfg.KeyPath = *keyPath
		case "log-level":
			fileCfg.LogLevel = *logLevel
		case "bootstrap":
			fileCfg.Bootstrap = *bootstrap
		}
	})

	if err := fileCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags:\n%w", err)
	}

	cfg.Config = fileCfg

	return cfg, nil
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
