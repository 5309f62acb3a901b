package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"BandwidthBazaar/internal/api"
	"BandwidthBazaar/internal/history"
	"BandwidthBazaar/internal/ledger"
	"BandwidthBazaar/internal/snapshot"
	"BandwidthBazaar/internal/state"
	"BandwidthBazaar/internal/storage"
)

// startNode runs a full API stack over temporary storage and returns a connected client.
func startNode(t *testing.T) *Client {
	t.Helper()

	_, url := startServer(t)

	c, err := NewClient(url)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	return c
}

// startServer runs the full node stack behind httptest and returns the API
// server with its base URL.
func startServer(t *testing.T) (*api.Server, string) {
	t.Helper()

	dir := t.TempDir()

	db, err := storage.New(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}

	journal, err := history.Open(filepath.Join(dir, "journal.sqlite"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}

	st := state.New(ledger.New(db), ledger.DefaultParams(), state.WithJournal(journal))
	server := api.New(":0", st, api.WithHistory(journal), api.WithSnapshots(db))
	ts := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		ts.Close()
		server.Stop()
		journal.Close()
		db.Close()
	})

	return server, ts.URL
}

func TestWallet_FullFlow(t *testing.T) {
	c := startNode(t)
	authority := NewWallet()
	user := NewWallet()

	if _, err := authority.Initialize(c); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, err := user.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r, err := user.Contribute(c, 2, 0)
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}

	if r.BandwidthMB != 2048 || r.TokensMinted != 2_000_000 {
		t.Errorf("contribute receipt = %+v", r)
	}

	r, err = user.Claim(c, 1_000_000)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if r.SettlementAmount != 950_000 {
		t.Errorf("settlement = %d, want 950000", r.SettlementAmount)
	}

	status, err := c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if !status.Initialized || status.TotalUsers != 1 || status.TotalTokensMinted != 2_000_000 {
		t.Errorf("status = %+v", status)
	}

	u, err := c.User(user.Pubkey())
	if err != nil {
		t.Fatalf("User: %v", err)
	}

	if u.Unclaimed != 1_000_000 || u.TokensClaimed != 1_000_000 {
		t.Errorf("user = %+v", u)
	}

	entries, err := c.History(user.Pubkey(), 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("history has %d entries, want 3", len(entries))
	}

	if entries[0].Instruction != "claim_rewards" || entries[2].Instruction != "register_user" {
		t.Errorf("history order = %s..%s", entries[0].Instruction, entries[2].Instruction)
	}
}

func TestWallet_RejectionCodes(t *testing.T) {
	c := startNode(t)
	user := NewWallet()

	if _, err := NewWallet().Initialize(c); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := user.Contribute(c, 1, 0)
	if ErrorCode(err) != "NotFound" {
		t.Errorf("unregistered contribute: code %q, err %v", ErrorCode(err), err)
	}

	if _, err := user.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err = user.Claim(c, 1)
	if ErrorCode(err) != "InvalidAmount" {
		t.Errorf("dust claim: code %q, err %v", ErrorCode(err), err)
	}

	_, err = user.Claim(c, 10_000_000)
	if ErrorCode(err) != "InsufficientBalance" {
		t.Errorf("overdraw: code %q, err %v", ErrorCode(err), err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("err = %v, want 422 APIError", err)
	}

	_, err = NewWallet().Initialize(c)
	if ErrorCode(err) != "AlreadyExists" {
		t.Errorf("second initialize: code %q, err %v", ErrorCode(err), err)
	}
}

func TestClient_UnknownUser(t *testing.T) {
	c := startNode(t)

	_, err := c.User(NewWallet().Pubkey())

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("err = %v, want 404 APIError", err)
	}
}

func TestClient_Snapshot(t *testing.T) {
	c := startNode(t)
	user := NewWallet()

	if _, err := NewWallet().Initialize(c); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, err := user.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	snap, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.Records != 2 || snap.Checksum == "" {
		t.Errorf("snapshot = %d records, checksum %q", snap.Records, snap.Checksum)
	}

	dst, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	defer dst.Close()

	info, err := snapshot.Import(dst, snap.Data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if info.Checksum != snap.Checksum {
		t.Errorf("checksum %s, want %s", info.Checksum, snap.Checksum)
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	if _, err := NewClient(addr); err == nil {
		t.Error("expected error for unreachable node")
	}
}

func TestWalletFromKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	w, err := WalletFromKey(priv)
	if err != nil {
		t.Fatalf("WalletFromKey: %v", err)
	}

	pk := w.Pubkey()
	if string(pk[:]) != string(pub) {
		t.Error("pubkey mismatch")
	}

	if _, err := WalletFromKey(priv[:10]); err == nil {
		t.Error("expected error for short key")
	}
}

func TestWallet_NoncesIncrease(t *testing.T) {
	w := NewWallet()

	prev := w.nextNonce()
	for i := 0; i < 1000; i++ {
		n := w.nextNonce()
		if n <= prev {
			t.Fatalf("nonce %d not greater than %d", n, prev)
		}
		prev = n
	}
}
