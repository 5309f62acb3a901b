package main

import (
	"fmt"
	"os"

	"BandwidthBazaar/internal/genesis"
	"BandwidthBazaar/internal/history"
	"BandwidthBazaar/internal/ledger"
	"BandwidthBazaar/internal/logger"
	"BandwidthBazaar/internal/metrics"
	"BandwidthBazaar/internal/snapshot"
	"BandwidthBazaar/internal/state"
	"BandwidthBazaar/internal/storage"
)

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	var opts []storage.Option
	if n.cfg.Storage.SyncWrites {
		opts = append(opts, storage.WithSyncWrites())
	}

	if d := n.cfg.SyncInterval(); d > 0 {
		opts = append(opts, storage.WithSyncInterval(d))
	}

	db, err := storage.New(n.cfg.StoragePath(), opts...)
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db
	n.ledger = ledger.New(db)

	return nil
}

// initJournal opens the SQLite operation journal when enabled.
func (n *Node) initJournal() error {
	if !n.cfg.History.Enabled {
		return nil
	}

	j, err := history.Open(n.cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("init journal:\n%w", err)
	}

	n.journal = j

	return nil
}

// initState initializes the transaction executor.
func (n *Node) initState() {
	var opts []state.Option
	if n.journal != nil {
		opts = append(opts, state.WithJournal(n.journal))
	}

	n.state = state.New(n.ledger, n.cfg.LedgerParams(), opts...)

	if g, err := n.ledger.Aggregate(); err == nil {
		metrics.Users.Set(float64(g.TotalUsers))
	}
}

// bootstrap executes the genesis transactions unless the ledger already exists.
func (n *Node) bootstrap() error {
	initialized, err := n.ledger.Initialized()
	if err != nil {
		return fmt.Errorf("check ledger:\n%w", err)
	}

	if initialized {
		logger.Info("bootstrap skipped, ledger already initialized")
		return nil
	}

	txs, err := genesis.BuildTransactions(genesis.Config{PrivateKey: n.cfg.PrivateKey})
	if err != nil {
		return fmt.Errorf("build genesis:\n%w", err)
	}

	for i, tx := range txs {
		if _, err := n.state.Execute(tx); err != nil {
			return fmt.Errorf("execute genesis tx %d:\n%w", i, err)
		}
	}

	logger.Info("ledger bootstrapped", "txs", len(txs))

	return nil
}

// restoreSnapshot loads a snapshot file into the empty store and audits the result.
func (n *Node) restoreSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot:\n%w", err)
	}

	info, err := snapshot.Import(n.storage, data)
	if err != nil {
		return fmt.Errorf("import snapshot %s:\n%w", path, err)
	}

	if _, err := n.ledger.Audit(); err != nil {
		return fmt.Errorf("audit restored ledger:\n%w", err)
	}

	logger.Info("snapshot restored",
		"path", path,
		"records", info.Records,
		"users", info.Users,
		"created", info.CreatedAt,
	)

	return nil
}
