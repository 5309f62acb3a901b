package genesis

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/zeebo/blake3"

	"BandwidthBazaar/internal/types"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return priv
}

func TestContributeArgs(t *testing.T) {
	data := EncodeContributeArgs(3, 512)

	if len(data) != 16 {
		t.Fatalf("encoded %d bytes, want 16", len(data))
	}

	args, err := DecodeContributeArgs(data)
	if err != nil {
		t.Fatalf("DecodeContributeArgs failed: %v", err)
	}

	if args.BandwidthGB != 3 || args.BandwidthMB != 512 {
		t.Errorf("got %+v", args)
	}

	if _, err := DecodeContributeArgs(data[:15]); err == nil {
		t.Error("expected error for short args")
	}
}

func TestClaimArgs(t *testing.T) {
	args, err := DecodeClaimArgs(EncodeClaimArgs(1_000_000))
	if err != nil {
		t.Fatalf("DecodeClaimArgs failed: %v", err)
	}

	if args.Amount != 1_000_000 {
		t.Errorf("amount = %d", args.Amount)
	}

	if _, err := DecodeClaimArgs(nil); err == nil {
		t.Error("expected error for empty args")
	}
}

func TestBuildSignedTx(t *testing.T) {
	priv := newKey(t)
	pub := priv.Public().(ed25519.PublicKey)
	args := EncodeClaimArgs(42)

	data, hash := BuildSignedTx(priv, InstrClaim, args, 99)
	tx := types.GetRootAsTransaction(data, 0)

	if !bytes.Equal(tx.SenderBytes(), pub) {
		t.Error("sender is not the signer's public key")
	}

	if string(tx.Instruction()) != InstrClaim {
		t.Errorf("instruction = %q", tx.Instruction())
	}

	if !bytes.Equal(tx.ArgsBytes(), args) {
		t.Error("args not preserved")
	}

	if tx.Nonce() != 99 {
		t.Errorf("nonce = %d, want 99", tx.Nonce())
	}

	if !bytes.Equal(tx.HashBytes(), hash[:]) {
		t.Error("embedded hash differs from returned hash")
	}

	expected := blake3.Sum256(UnsignedTxBytes(tx.SenderBytes(), string(tx.Instruction()), tx.ArgsBytes(), tx.Nonce()))
	if expected != hash {
		t.Error("hash does not cover the unsigned transaction")
	}

	if !ed25519.Verify(pub, hash[:], tx.SignatureBytes()) {
		t.Error("signature does not verify")
	}
}

func TestBuildTransactions(t *testing.T) {
	priv := newKey(t)
	now := time.Unix(1_700_000_000, 0)

	txs, err := BuildTransactions(Config{PrivateKey: priv, Now: now})
	if err != nil {
		t.Fatalf("BuildTransactions failed: %v", err)
	}

	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}

	tx := types.GetRootAsTransaction(txs[0], 0)
	if string(tx.Instruction()) != InstrInitialize {
		t.Errorf("instruction = %q, want initialize", tx.Instruction())
	}

	if tx.Nonce() != uint64(now.UnixNano()) {
		t.Errorf("nonce = %d", tx.Nonce())
	}

	if _, err := BuildTransactions(Config{}); err == nil {
		t.Error("expected error without key")
	}
}
