package state

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"BandwidthBazaar/internal/genesis"
	"BandwidthBazaar/internal/history"
	"BandwidthBazaar/internal/ledger"
	"BandwidthBazaar/internal/storage"
)

// memJournal collects entries in memory.
type memJournal struct {
	entries []history.Entry
	fail    bool
}

func (m *memJournal) Record(e history.Entry) error {
	if m.fail {
		return errors.New("disk full")
	}

	m.entries = append(m.entries, e)

	return nil
}

// newTestState creates a State over a temporary Pebble store.
func newTestState(t *testing.T, opts ...Option) *State {
	t.Helper()

	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return New(ledger.New(db), ledger.DefaultParams(), opts...)
}

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return priv
}

var nonce uint64

// exec signs and executes one transaction.
func exec(t *testing.T, s *State, priv ed25519.PrivateKey, instruction string, args []byte) (*Receipt, error) {
	t.Helper()

	nonce++
	tx, _ := genesis.BuildSignedTx(priv, instruction, args, nonce)

	return s.Execute(tx)
}

func mustExec(t *testing.T, s *State, priv ed25519.PrivateKey, instruction string, args []byte) *Receipt {
	t.Helper()

	r, err := exec(t, s, priv, instruction, args)
	if err != nil {
		t.Fatalf("%s failed: %v", instruction, err)
	}

	return r
}

func TestExecute_FullFlow(t *testing.T) {
	journal := &memJournal{}
	s := newTestState(t, WithJournal(journal))

	authority := newKey(t)
	user := newKey(t)

	mustExec(t, s, authority, genesis.InstrInitialize, nil)
	mustExec(t, s, user, genesis.InstrRegisterUser, nil)

	r := mustExec(t, s, user, genesis.InstrContribute, genesis.EncodeContributeArgs(1, 512))
	if r.BandwidthMB != 1536 || r.TokensMinted != 1_500_000 {
		t.Errorf("contribute receipt = %+v", r)
	}

	r = mustExec(t, s, user, genesis.InstrClaim, genesis.EncodeClaimArgs(1_000_000))
	if r.TokensClaimed != 1_000_000 || r.SettlementAmount != 950_000 {
		t.Errorf("claim receipt = %+v", r)
	}

	id, _ := ledger.IdentityFromBytes(user.Public().(ed25519.PublicKey))
	if r.Owner != id.String() {
		t.Errorf("owner = %s, want %s", r.Owner, id)
	}

	u, err := s.Ledger().User(id)
	if err != nil {
		t.Fatalf("User failed: %v", err)
	}

	if u.TokensEarned != 1_500_000 || u.TokensClaimed != 1_000_000 {
		t.Errorf("user = %+v", u)
	}

	if len(journal.entries) != 4 {
		t.Fatalf("journal has %d entries, want 4", len(journal.entries))
	}

	if journal.entries[2].Instruction != genesis.InstrContribute || journal.entries[2].TokensMinted != 1_500_000 {
		t.Errorf("journal entry = %+v", journal.entries[2])
	}
}

func TestExecute_InitializeUsesConfiguredParams(t *testing.T) {
	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer db.Close()

	params := ledger.Params{PlatformFeeBPS: 0, TokensPerGB: 2048, USDCPerToken: 1}
	s := New(ledger.New(db), params)

	mustExec(t, s, newKey(t), genesis.InstrInitialize, nil)

	g, err := s.Ledger().Aggregate()
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if g.TokensPerGB != 2048 || g.USDCPerToken != 1 || g.PlatformFeeBPS != 0 {
		t.Errorf("aggregate params = %+v", g)
	}
}

func TestExecute_LedgerRejection(t *testing.T) {
	journal := &memJournal{}
	s := newTestState(t, WithJournal(journal))

	authority := newKey(t)
	user := newKey(t)

	mustExec(t, s, authority, genesis.InstrInitialize, nil)
	mustExec(t, s, user, genesis.InstrRegisterUser, nil)

	_, err := exec(t, s, user, genesis.InstrContribute, genesis.EncodeContributeArgs(0, 0))
	if !errors.Is(err, ledger.ErrInvalidBandwidth) {
		t.Errorf("err = %v, want ErrInvalidBandwidth", err)
	}

	_, err = exec(t, s, user, genesis.InstrClaim, genesis.EncodeClaimArgs(1))
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("err = %v, want ErrInvalidAmount", err)
	}

	_, err = exec(t, s, user, genesis.InstrRegisterUser, nil)
	if !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}

	if len(journal.entries) != 2 {
		t.Errorf("rejected operations were journaled: %d entries", len(journal.entries))
	}
}

func TestExecute_UnregisteredCaller(t *testing.T) {
	s := newTestState(t)

	mustExec(t, s, newKey(t), genesis.InstrInitialize, nil)

	_, err := exec(t, s, newKey(t), genesis.InstrContribute, genesis.EncodeContributeArgs(1, 0))
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExecute_BadArguments(t *testing.T) {
	s := newTestState(t)
	priv := newKey(t)

	_, err := exec(t, s, priv, genesis.InstrInitialize, []byte{1})
	if !errors.Is(err, ErrMalformedTx) {
		t.Errorf("initialize with args: err = %v, want ErrMalformedTx", err)
	}

	_, err = exec(t, s, priv, genesis.InstrContribute, []byte{1, 2, 3})
	if !errors.Is(err, ErrMalformedTx) {
		t.Errorf("short contribute args: err = %v, want ErrMalformedTx", err)
	}

	_, err = exec(t, s, priv, genesis.InstrClaim, nil)
	if !errors.Is(err, ErrMalformedTx) {
		t.Errorf("missing claim args: err = %v, want ErrMalformedTx", err)
	}
}

func TestExecute_UnknownInstruction(t *testing.T) {
	s := newTestState(t)

	_, err := exec(t, s, newKey(t), "deactivate_user", nil)
	if !errors.Is(err, ErrUnknownInstruction) {
		t.Errorf("err = %v, want ErrUnknownInstruction", err)
	}
}

func TestExecute_GarbageBytes(t *testing.T) {
	s := newTestState(t)

	inputs := [][]byte{
		nil,
		{0x01, 0x02},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
	}

	for _, in := range inputs {
		if _, err := s.Execute(in); !errors.Is(err, ErrMalformedTx) {
			t.Errorf("Execute(%x): err = %v, want ErrMalformedTx", in, err)
		}
	}
}

func TestExecute_JournalFailureKeepsLedgerWrite(t *testing.T) {
	journal := &memJournal{fail: true}
	s := newTestState(t, WithJournal(journal), WithClock(func() time.Time { return time.Unix(10, 0) }))

	r := mustExec(t, s, newKey(t), genesis.InstrInitialize, nil)
	if !r.Time.Equal(time.Unix(10, 0)) {
		t.Errorf("receipt time = %v", r.Time)
	}

	ok, err := s.Ledger().Initialized()
	if err != nil || !ok {
		t.Errorf("Initialized = %v, %v; want true", ok, err)
	}
}

func TestExecute_DuplicateAfterReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := storage.New(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	s := New(ledger.New(db), ledger.DefaultParams())
	user := newKey(t)

	mustExec(t, s, newKey(t), genesis.InstrInitialize, nil)
	mustExec(t, s, user, genesis.InstrRegisterUser, nil)

	nonce++
	contribute, _ := genesis.BuildSignedTx(user, genesis.InstrContribute, genesis.EncodeContributeArgs(1, 0), nonce)

	if _, err := s.Execute(contribute); err != nil {
		t.Fatalf("contribute failed: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("close storage: %v", err)
	}

	db, err = storage.New(dir)
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	defer db.Close()

	s = New(ledger.New(db), ledger.DefaultParams())

	if _, err := s.Execute(contribute); !errors.Is(err, ErrDuplicateTx) {
		t.Fatalf("resubmitted contribute: err = %v, want ErrDuplicateTx", err)
	}

	id, _ := ledger.IdentityFromBytes(user.Public().(ed25519.PublicKey))

	u, err := s.Ledger().User(id)
	if err != nil {
		t.Fatalf("User failed: %v", err)
	}

	if u.TokensEarned != 1_000_000 || u.TotalBandwidthMB != 1024 {
		t.Errorf("user after resubmission = %+v, want one contribution", u)
	}
}

func TestExecute_RejectedTxIsSpent(t *testing.T) {
	s := newTestState(t)
	user := newKey(t)

	mustExec(t, s, newKey(t), genesis.InstrInitialize, nil)
	mustExec(t, s, user, genesis.InstrRegisterUser, nil)

	nonce++
	claim, _ := genesis.BuildSignedTx(user, genesis.InstrClaim, genesis.EncodeClaimArgs(2), nonce)

	if _, err := s.Execute(claim); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("claim before earning: err = %v, want ErrInsufficientBalance", err)
	}

	mustExec(t, s, user, genesis.InstrContribute, genesis.EncodeContributeArgs(1, 0))

	if _, err := s.Execute(claim); !errors.Is(err, ErrDuplicateTx) {
		t.Errorf("claim resubmitted after earning: err = %v, want ErrDuplicateTx", err)
	}
}

func TestExecute_RatesFixedAtInitialize(t *testing.T) {
	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer db.Close()

	l := ledger.New(db)
	user := newKey(t)

	s := New(l, ledger.DefaultParams())
	mustExec(t, s, newKey(t), genesis.InstrInitialize, nil)
	mustExec(t, s, user, genesis.InstrRegisterUser, nil)

	// A restart with edited rates keeps the ones stored at initialize.
	s = New(l, ledger.Params{PlatformFeeBPS: 0, TokensPerGB: 2048, USDCPerToken: 1})

	r := mustExec(t, s, user, genesis.InstrContribute, genesis.EncodeContributeArgs(1, 0))
	if r.TokensMinted != 1_000_000 {
		t.Errorf("minted %d, want 1000000 at the initialize rate", r.TokensMinted)
	}
}
