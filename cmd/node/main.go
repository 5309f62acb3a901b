package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"BandwidthBazaar/internal/logger"
)

func main() {
	logger.Init()

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger.SetLevel(cfg.LogLevel)

	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	if cfg.SnapshotOut != "" {
		defer node.Close()
		return node.WriteSnapshot(cfg.SnapshotOut)
	}

	printStartupInfo(cfg)

	return node.Run()
}

// printStartupInfo displays node configuration at startup.
func printStartupInfo(cfg *Config) {
	pubKey := cfg.PrivateKey.Public().(ed25519.PublicKey)
	pubKeyHex := hex.EncodeToString(pubKey)

	logger.Info("starting bandwidth ledger node",
		"pubkey", pubKeyHex,
		"http", cfg.HTTP.Listen,
		"quic", cfg.QUIC.Listen,
		"data", cfg.DataDir,
		"bootstrap", cfg.Bootstrap,
		"journal", cfg.History.Enabled,
	)

	if cfg.Bootstrap {
		params := cfg.LedgerParams()
		logger.Info("genesis configuration",
			"fee_bps", params.PlatformFeeBPS,
			"tokens_per_gb", params.TokensPerGB,
			"usdc_per_token", params.USDCPerToken,
		)
	}
}
