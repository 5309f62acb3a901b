// Package snapshot exports and restores the ledger's Pebble records.
//
// A snapshot is a FlatBuffers Snapshot holding every aggregate and user
// record sorted by key, a blake3 checksum over that canonical content,
// and is shipped zstd-compressed.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"BandwidthBazaar/internal/ledger"
	"BandwidthBazaar/internal/storage"
	"BandwidthBazaar/internal/types"
)

// snapshotVersion is the current snapshot format version.
const snapshotVersion = 1

var (
	// ErrChecksum is returned when a snapshot's content does not match its checksum.
	ErrChecksum = errors.New("snapshot checksum mismatch")

	// ErrNotEmpty is returned when restoring into a store that already holds a ledger.
	ErrNotEmpty = errors.New("target store already holds a ledger")
)

// Info describes a created or restored snapshot.
type Info struct {
	Version   uint32    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	Records   int       `json:"records"`
	Users     int       `json:"users"`
	Checksum  string    `json:"checksum"` // hex blake3
}

// record holds a key and its encoded value.
type record struct {
	key   []byte
	value []byte
}

// Create builds an uncompressed snapshot of every ledger record in db.
// A single iterator is used so the snapshot reflects one consistent view.
func Create(db *storage.Storage, createdAt time.Time) ([]byte, *Info, error) {
	records, err := collectRecords(db)
	if err != nil {
		return nil, nil, fmt.Errorf("collect records:\n%w", err)
	}

	data, info := build(createdAt.Unix(), records)

	return data, info, nil
}

// Export creates a snapshot and compresses it.
func Export(db *storage.Storage, createdAt time.Time) ([]byte, *Info, error) {
	data, info, err := Create(db, createdAt)
	if err != nil {
		return nil, nil, err
	}

	compressed, err := Compress(data)
	if err != nil {
		return nil, nil, fmt.Errorf("compress snapshot:\n%w", err)
	}

	return compressed, info, nil
}

// Import decompresses and applies a snapshot to db.
func Import(db *storage.Storage, compressed []byte) (*Info, error) {
	data, err := Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot:\n%w", err)
	}

	return Apply(db, data)
}

// collectRecords returns the aggregate and all user records.
func collectRecords(db *storage.Storage) ([]record, error) {
	globalKey := ledger.GlobalKey()
	userPrefix := ledger.UserPrefix()

	var records []record

	err := db.Iterate(func(key, value []byte) error {
		if !bytes.Equal(key, globalKey) && !bytes.HasPrefix(key, userPrefix) {
			return nil
		}

		// Copy key and value to avoid iterator invalidation
		records = append(records, record{
			key:   bytes.Clone(key),
			value: bytes.Clone(value),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// build encodes sorted records into a Snapshot table with checksum.
func build(createdAt int64, records []record) ([]byte, *Info) {
	sortRecords(records)
	checksum := computeChecksum(snapshotVersion, records)

	builder := flatbuffers.NewBuilder(1024 + len(records)*128)

	offsets := make([]flatbuffers.UOffsetT, len(records))
	for i, r := range records {
		keyOff := builder.CreateByteVector(r.key)
		valueOff := builder.CreateByteVector(r.value)

		types.SnapshotRecordStart(builder)
		types.SnapshotRecordAddKey(builder, keyOff)
		types.SnapshotRecordAddValue(builder, valueOff)
		offsets[i] = types.SnapshotRecordEnd(builder)
	}

	types.SnapshotStartRecordsVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	recordsVec := builder.EndVector(len(offsets))

	checksumOff := builder.CreateByteVector(checksum[:])

	types.SnapshotStart(builder)
	types.SnapshotAddVersion(builder, snapshotVersion)
	types.SnapshotAddCreatedAt(builder, createdAt)
	types.SnapshotAddChecksum(builder, checksumOff)
	types.SnapshotAddRecords(builder, recordsVec)
	builder.Finish(types.SnapshotEnd(builder))

	return builder.FinishedBytes(), newInfo(snapshotVersion, createdAt, records, checksum)
}

func newInfo(version uint32, createdAt int64, records []record, checksum [32]byte) *Info {
	users := 0
	for _, r := range records {
		if bytes.HasPrefix(r.key, ledger.UserPrefix()) {
			users++
		}
	}

	return &Info{
		Version:   version,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
		Records:   len(records),
		Users:     users,
		Checksum:  hex.EncodeToString(checksum[:]),
	}
}

// sortRecords sorts records by key for deterministic ordering.
func sortRecords(records []record) {
	sort.Slice(records, func(i, j int) bool {
		return bytes.Compare(records[i].key, records[j].key) < 0
	})
}

// computeChecksum computes a blake3 checksum over canonical snapshot data.
// Format: version (4 bytes) + for each record: u32 key len, key, u32 value len, value
func computeChecksum(version uint32, records []record) [32]byte {
	hasher := blake3.New()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], version)
	hasher.Write(buf[:])

	for _, r := range records {
		binary.BigEndian.PutUint32(buf[:], uint32(len(r.key)))
		hasher.Write(buf[:])
		hasher.Write(r.key)

		binary.BigEndian.PutUint32(buf[:], uint32(len(r.value)))
		hasher.Write(buf[:])
		hasher.Write(r.value)
	}

	var checksum [32]byte
	hasher.Sum(checksum[:0])

	return checksum
}

// Compress compresses snapshot data using zstd.
func Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses zstd-compressed snapshot data.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}

// Apply verifies a snapshot and writes its records to db in one batch.
// The target must not hold a ledger yet, every record must decode, and the
// user records must sum to the aggregate. Nothing is written otherwise.
func Apply(db *storage.Storage, data []byte) (*Info, error) {
	snap, records, err := read(data)
	if err != nil {
		return nil, err
	}

	checksum := computeChecksum(snap.Version(), records)
	if !bytes.Equal(checksum[:], snap.ChecksumBytes()) {
		return nil, ErrChecksum
	}

	if err := validateRecords(records); err != nil {
		return nil, err
	}

	exists, err := db.Has(ledger.GlobalKey())
	if err != nil {
		return nil, fmt.Errorf("check target store:\n%w", err)
	}

	if exists {
		return nil, ErrNotEmpty
	}

	pairs := make([]storage.KeyValue, len(records))
	for i, r := range records {
		pairs[i] = storage.KeyValue{Key: r.key, Value: r.value}
	}

	if err := db.SetBatch(pairs); err != nil {
		return nil, fmt.Errorf("write records:\n%w", err)
	}

	return newInfo(snap.Version(), snap.CreatedAt(), records, checksum), nil
}

// read parses the snapshot table, converting FlatBuffers panics on
// truncated input into an error. Records are copied out of the buffer.
func read(data []byte) (snap *types.Snapshot, records []record, err error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("snapshot too short: %d bytes", len(data))
	}

	defer func() {
		if r := recover(); r != nil {
			snap, records, err = nil, nil, fmt.Errorf("malformed snapshot: %v", r)
		}
	}()

	snap = types.GetRootAsSnapshot(data, 0)

	if v := snap.Version(); v != snapshotVersion {
		return nil, nil, fmt.Errorf("unsupported snapshot version %d", v)
	}

	if len(snap.ChecksumBytes()) != 32 {
		return nil, nil, fmt.Errorf("invalid checksum length: %d", len(snap.ChecksumBytes()))
	}

	records = make([]record, snap.RecordsLength())

	var r types.SnapshotRecord
	for i := range records {
		if !snap.Records(&r, i) {
			return nil, nil, fmt.Errorf("read record %d", i)
		}

		records[i] = record{
			key:   bytes.Clone(r.KeyBytes()),
			value: bytes.Clone(r.ValueBytes()),
		}
	}

	return snap, records, nil
}

// validateRecords checks that the records form a decodable ledger with
// exactly one aggregate, that each user record sits at its derived key, and
// that the user records conserve the aggregate's totals.
func validateRecords(records []record) error {
	globalKey := ledger.GlobalKey()
	userPrefix := ledger.UserPrefix()
	aggregates := 0

	var (
		g     *ledger.GlobalAggregate
		tally ledger.Tally
	)

	for i, r := range records {
		if i > 0 && bytes.Compare(records[i-1].key, r.key) >= 0 {
			return fmt.Errorf("records not sorted at %d", i)
		}

		switch {
		case bytes.Equal(r.key, globalKey):
			agg, err := ledger.DecodeGlobal(r.value)
			if err != nil {
				return fmt.Errorf("aggregate record:\n%w", err)
			}
			g = agg
			aggregates++

		case bytes.HasPrefix(r.key, userPrefix):
			u, err := ledger.DecodeUser(r.value)
			if err != nil {
				return fmt.Errorf("user record %x:\n%w", r.key, err)
			}

			if !bytes.Equal(ledger.UserKey(u.Owner), r.key) {
				return fmt.Errorf("user record %x stored under a foreign key", r.key)
			}

			if err := tally.Add(u); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unexpected key %q", r.key)
		}
	}

	if aggregates != 1 {
		return fmt.Errorf("snapshot holds %d aggregate records, want 1", aggregates)
	}

	return tally.Check(g)
}
