package ledger

import (
	"sync"
	"time"

	"BandwidthBazaar/internal/storage"
)

// lockStripes is the number of per-user mutexes. Users hashing to the same
// stripe serialize; all others run in parallel.
const lockStripes = 256

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger applies registry and engine transitions to persisted records.
//
// Every operation touches the aggregate and at most one user record.
// Lock order is always user stripe, then aggregate, so concurrent
// operations cannot deadlock. Each operation commits with a single batch:
// a failure at any step leaves storage untouched. TxMarks passed to an
// operation join that batch.
type Ledger struct {
	store *recordStore
	now   func() time.Time

	globalMu sync.Mutex              // globalMu serializes aggregate read-modify-write
	userMu   [lockStripes]sync.Mutex // userMu serializes operations per user stripe
}

// New creates a ledger over the given storage.
func New(db *storage.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		store: newRecordStore(db),
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// lockUser acquires the stripe guarding the record stored at key.
// The key's last byte is a blake3 output byte, so stripes are uniform.
func (l *Ledger) lockUser(key []byte) func() {
	mu := &l.userMu[key[len(key)-1]]
	mu.Lock()

	return mu.Unlock
}

// Aggregate returns a copy of the global aggregate.
func (l *Ledger) Aggregate() (*GlobalAggregate, error) {
	return l.store.loadGlobal()
}

// User returns a copy of the identity's record.
func (l *Ledger) User(owner Identity) (*UserRecord, error) {
	return l.store.loadUser(owner)
}

// Initialized reports whether the aggregate exists.
func (l *Ledger) Initialized() (bool, error) {
	return l.store.hasGlobal()
}

// EachUser calls fn for every user record. Records are decoded copies.
func (l *Ledger) EachUser(fn func(u *UserRecord) error) error {
	return l.store.eachUser(fn)
}

// unixNow returns the current time in unix seconds.
func (l *Ledger) unixNow() int64 {
	return l.now().Unix()
}
