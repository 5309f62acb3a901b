package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BandwidthBazaar/internal/api"
	"BandwidthBazaar/internal/history"
	"BandwidthBazaar/internal/ledger"
	"BandwidthBazaar/internal/logger"
	"BandwidthBazaar/internal/network"
	"BandwidthBazaar/internal/snapshot"
	"BandwidthBazaar/internal/state"
	"BandwidthBazaar/internal/storage"
)

// Node represents a running ledger node.
type Node struct {
	cfg     *Config
	storage *storage.Storage
	journal *history.Journal // journal is nil when history is disabled
	ledger  *ledger.Ledger
	state   *state.State
	api     *api.Server
	ingress *network.Server // ingress is nil when QUIC is disabled
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if cfg.SnapshotIn != "" {
		if err := n.restoreSnapshot(cfg.SnapshotIn); err != nil {
			n.Close()
			return nil, err
		}
	}

	if err := n.initJournal(); err != nil {
		n.Close()
		return nil, err
	}

	n.initState()

	if cfg.Bootstrap {
		if err := n.bootstrap(); err != nil {
			n.Close()
			return nil, err
		}
	}

	return n, nil
}

// Run starts the node and blocks until shutdown signal.
func (n *Node) Run() error {
	n.logLedgerStatus()

	opts := []api.Option{
		api.WithReplayWindow(n.cfg.ReplayWindow()),
		api.WithSnapshots(n.storage),
	}

	if n.journal != nil {
		opts = append(opts, api.WithHistory(n.journal))
	}

	n.api = api.New(n.cfg.HTTP.Listen, n.state, opts...)
	if err := n.api.Start(); err != nil {
		n.Close()
		return fmt.Errorf("start api:\n%w", err)
	}

	if n.cfg.QUIC.Listen != "" {
		ingress, err := network.Listen(network.Config{
			PrivateKey: n.cfg.PrivateKey,
			ListenAddr: n.cfg.QUIC.Listen,
			Handler:    n.api.HandleFrame,
		})
		if err != nil {
			n.Close()
			return fmt.Errorf("start quic ingress:\n%w", err)
		}

		n.ingress = ingress
	}

	return n.waitForShutdown()
}

// WriteSnapshot exports the ledger to a compressed snapshot file.
func (n *Node) WriteSnapshot(path string) error {
	data, info, err := snapshot.Export(n.storage, time.Now())
	if err != nil {
		return fmt.Errorf("export snapshot:\n%w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot to %s:\n%w", path, err)
	}

	logger.Info("snapshot written",
		"path", path,
		"records", info.Records,
		"users", info.Users,
		"checksum", info.Checksum[:16],
		"bytes", len(data),
	)

	return nil
}

// logLedgerStatus prints the aggregate at startup.
func (n *Node) logLedgerStatus() {
	g, err := n.ledger.Aggregate()
	if err != nil {
		logger.Warn("ledger not initialized", "hint", "submit initialize or restart with --bootstrap")
		return
	}

	logger.Info("ledger loaded",
		"authority", g.Authority.Short(),
		"users", g.TotalUsers,
		"bandwidth_mb", g.TotalBandwidthMB,
		"tokens_minted", g.TotalTokensMinted,
	)
}

func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close stops the transports and releases storage.
func (n *Node) Close() error {
	if n.ingress != nil {
		n.ingress.Close()
	}

	if n.api != nil {
		n.api.Stop()
	}

	if n.journal != nil {
		n.journal.Close()
	}

	if n.storage != nil {
		return n.storage.Close()
	}

	return nil
}
