package ledger

import (
	"fmt"

	"github.com/zeebo/blake3"

	"BandwidthBazaar/internal/storage"
)

// Key layout in Pebble.
var (
	globalKey  = []byte("g:state") // g:state -> GlobalAggregate
	userPrefix = []byte("u:")      // u:<blake3("user" || owner)> -> UserRecord
)

// userSeed is mixed into the user key derivation.
var userSeed = []byte("user")

// UserKey derives the storage key of an identity's record.
// The derivation is deterministic so any node resolves the same record.
func UserKey(owner Identity) []byte {
	h := blake3.New()
	h.Write(userSeed)
	h.Write(owner[:])

	key := make([]byte, 0, len(userPrefix)+32)
	key = append(key, userPrefix...)

	return h.Sum(key)
}

// GlobalKey returns the storage key of the aggregate.
func GlobalKey() []byte {
	return append([]byte(nil), globalKey...)
}

// UserPrefix returns the key prefix shared by all user records.
func UserPrefix() []byte {
	return append([]byte(nil), userPrefix...)
}

// recordStore reads and writes ledger records on Pebble.
type recordStore struct {
	db *storage.Storage
}

// newRecordStore creates a record store backed by the given storage.
func newRecordStore(db *storage.Storage) *recordStore {
	return &recordStore{db: db}
}

// loadGlobal reads the aggregate. Returns ErrNotFound before initialize.
func (s *recordStore) loadGlobal() (*GlobalAggregate, error) {
	data, err := s.db.Get(globalKey)
	if err != nil {
		return nil, fmt.Errorf("read global aggregate:\n%w", err)
	}

	if data == nil {
		return nil, fmt.Errorf("%w: ledger is not initialized", ErrNotFound)
	}

	return DecodeGlobal(data)
}

// hasGlobal reports whether the aggregate has been created.
func (s *recordStore) hasGlobal() (bool, error) {
	return s.db.Has(globalKey)
}

// loadUser reads the record stored under the identity's derived key.
func (s *recordStore) loadUser(owner Identity) (*UserRecord, error) {
	data, err := s.db.Get(UserKey(owner))
	if err != nil {
		return nil, fmt.Errorf("read user %s:\n%w", owner.Short(), err)
	}

	if data == nil {
		return nil, fmt.Errorf("%w: no user record for %s", ErrNotFound, owner.Short())
	}

	return DecodeUser(data)
}

// hasUser reports whether a record exists under the identity's derived key.
func (s *recordStore) hasUser(owner Identity) (bool, error) {
	return s.db.Has(UserKey(owner))
}

// commit writes the given records and transaction marks in one atomic batch.
// A nil record is left untouched.
func (s *recordStore) commit(g *GlobalAggregate, key []byte, u *UserRecord, marks ...TxMark) error {
	pairs := make([]storage.KeyValue, 0, 2+len(marks))

	if g != nil {
		pairs = append(pairs, storage.KeyValue{Key: globalKey, Value: EncodeGlobal(g)})
	}

	if u != nil {
		pairs = append(pairs, storage.KeyValue{Key: key, Value: EncodeUser(u)})
	}

	for _, m := range marks {
		pairs = append(pairs, m.pair())
	}

	if len(pairs) == 0 {
		return nil
	}

	if err := s.db.SetBatch(pairs); err != nil {
		return fmt.Errorf("commit records:\n%w", err)
	}

	return nil
}

// eachUser calls fn for every stored user record in key order.
func (s *recordStore) eachUser(fn func(u *UserRecord) error) error {
	return s.db.IteratePrefix(userPrefix, func(key, value []byte) error {
		u, err := DecodeUser(value)
		if err != nil {
			return fmt.Errorf("user key %x:\n%w", key[len(userPrefix):], err)
		}

		return fn(u)
	})
}
