package ledger

import (
	"encoding/binary"
	"fmt"

	"BandwidthBazaar/internal/storage"
)

// txPrefix namespaces processed transaction hashes.
// t:<hash> -> accept time (unix nano, little-endian)
var txPrefix = []byte("t:")

// TxMark records that a transaction hash has been processed.
// Passed to an operation, it is written in the same batch as the records,
// so a committed transition and its hash persist together.
type TxMark struct {
	Hash [32]byte // Hash is the transaction hash
	At   int64    // At is the accept time in unix nanoseconds
}

// TxKey returns the storage key of a transaction mark.
func TxKey(hash [32]byte) []byte {
	key := make([]byte, 0, len(txPrefix)+len(hash))
	key = append(key, txPrefix...)

	return append(key, hash[:]...)
}

func (m TxMark) pair() storage.KeyValue {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, uint64(m.At))

	return storage.KeyValue{Key: TxKey(m.Hash), Value: value}
}

// Seen reports whether a mark for hash is stored.
func (l *Ledger) Seen(hash [32]byte) (bool, error) {
	ok, err := l.store.db.Has(TxKey(hash))
	if err != nil {
		return false, fmt.Errorf("check tx mark:\n%w", err)
	}

	return ok, nil
}

// Mark stores m on its own. Used for transactions the ledger rejected,
// which have no records to commit with.
func (l *Ledger) Mark(m TxMark) error {
	if err := l.store.db.SetBatch([]storage.KeyValue{m.pair()}); err != nil {
		return fmt.Errorf("write tx mark:\n%w", err)
	}

	return nil
}

// PruneMarks deletes marks accepted before the given unix nano time and
// returns how many were removed.
func (l *Ledger) PruneMarks(before int64) (int, error) {
	var expired [][]byte

	err := l.store.db.IteratePrefix(txPrefix, func(key, value []byte) error {
		if len(value) != 8 || int64(binary.LittleEndian.Uint64(value)) < before {
			expired = append(expired, append([]byte(nil), key...))
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan tx marks:\n%w", err)
	}

	if len(expired) == 0 {
		return 0, nil
	}

	if err := l.store.db.DeleteBatch(expired); err != nil {
		return 0, fmt.Errorf("delete tx marks:\n%w", err)
	}

	return len(expired), nil
}
