// Package history keeps a SQLite journal of applied ledger operations.
//
// The Pebble records hold only the latest totals; the journal answers
// "what happened to this user, and when" for audits and client history.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"BandwidthBazaar/internal/logger"
)

const (
	// DefaultLimit is the page size used when a caller passes limit <= 0.
	DefaultLimit = 50

	// MaxLimit caps a single history page.
	MaxLimit = 1000
)

// Entry is one applied operation.
type Entry struct {
	Seq              int64     `json:"seq"`
	TxHash           string    `json:"txHash"`
	Instruction      string    `json:"instruction"`
	Owner            string    `json:"owner"`
	BandwidthMB      uint64    `json:"bandwidthMb"`
	TokensMinted     uint64    `json:"tokensMinted"`
	TokensClaimed    uint64    `json:"tokensClaimed"`
	SettlementAmount uint64    `json:"settlementAmount"`
	Time             time.Time `json:"time"`
}

// Journal is a SQLite-backed operation log.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path and initialises the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %q:\n%w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal %s:\n%w", pragma, err)
		}
	}

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", "path", path)

	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS operations (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  tx_hash TEXT NOT NULL UNIQUE,
  instruction TEXT NOT NULL,
  owner TEXT NOT NULL,
  bandwidth_mb INTEGER NOT NULL DEFAULT 0,
  tokens_minted INTEGER NOT NULL DEFAULT 0,
  tokens_claimed INTEGER NOT NULL DEFAULT 0,
  settlement_amount INTEGER NOT NULL DEFAULT 0,
  time_unix INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS operations_owner ON operations (owner, seq);`

	if _, err := j.db.Exec(ddl); err != nil {
		return fmt.Errorf("init journal schema:\n%w", err)
	}

	return nil
}

// Record appends an entry. Seq is assigned by the database and ignored on input.
// SQLite integers are signed, so uint64 amounts are stored bit-for-bit as int64.
func (j *Journal) Record(e Entry) error {
	_, err := j.db.Exec(
		`INSERT INTO operations
		 (tx_hash, instruction, owner, bandwidth_mb, tokens_minted,
		  tokens_claimed, settlement_amount, time_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TxHash, e.Instruction, e.Owner,
		int64(e.BandwidthMB), int64(e.TokensMinted),
		int64(e.TokensClaimed), int64(e.SettlementAmount),
		e.Time.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record %s %s:\n%w", e.Instruction, e.TxHash, err)
	}

	return nil
}

// ListByOwner returns the most recent entries for owner, newest first.
func (j *Journal) ListByOwner(owner string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := j.db.Query(
		`SELECT seq, tx_hash, instruction, owner, bandwidth_mb, tokens_minted,
		        tokens_claimed, settlement_amount, time_unix
		 FROM operations WHERE owner = ?
		 ORDER BY seq DESC LIMIT ?`,
		owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history for %s:\n%w", owner, err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history:\n%w", err)
	}

	return entries, nil
}

// Count returns the number of journaled operations.
func (j *Journal) Count() (int64, error) {
	var n int64
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count operations:\n%w", err)
	}

	return n, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var bandwidth, minted, claimed, settled, unix int64

	err := rows.Scan(&e.Seq, &e.TxHash, &e.Instruction, &e.Owner,
		&bandwidth, &minted, &claimed, &settled, &unix)
	if err != nil {
		return Entry{}, fmt.Errorf("scan history row:\n%w", err)
	}

	e.BandwidthMB = uint64(bandwidth)
	e.TokensMinted = uint64(minted)
	e.TokensClaimed = uint64(claimed)
	e.SettlementAmount = uint64(settled)
	e.Time = time.Unix(unix, 0).UTC()

	return e, nil
}
