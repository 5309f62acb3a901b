package api

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"BandwidthBazaar/internal/genesis"
	"BandwidthBazaar/internal/types"
)

const (
	// hashSize is the expected size of a transaction hash.
	hashSize = 32

	// senderSize is the expected size of an Ed25519 public key.
	senderSize = 32

	// signatureSize is the expected size of an Ed25519 signature.
	signatureSize = 64

	// maxInstructionLen bounds the instruction name.
	maxInstructionLen = 64

	// maxArgsSize bounds the encoded arguments; the largest instruction takes 16 bytes.
	maxArgsSize = 256
)

// errInvalidSignature marks signature failures for metrics.
var errInvalidSignature = errors.New("invalid signature")

// validateTx validates a raw Transaction before execution.
// Checks structural integrity, hash correctness, and Ed25519 signature.
func validateTx(data []byte) (tx *types.Transaction, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			tx = nil
			retErr = fmt.Errorf("malformed transaction data")
		}
	}()

	if len(data) < 8 {
		return nil, fmt.Errorf("transaction data too short")
	}

	tx = types.GetRootAsTransaction(data, 0)

	if err := validateFieldSizes(tx); err != nil {
		return nil, err
	}

	if err := validateHash(tx); err != nil {
		return nil, err
	}

	if err := validateSignature(tx); err != nil {
		return nil, err
	}

	return tx, nil
}

// validateFieldSizes checks that all fixed-size fields have the correct length.
func validateFieldSizes(tx *types.Transaction) error {
	if len(tx.HashBytes()) != hashSize {
		return fmt.Errorf("invalid hash size: got %d, want %d", len(tx.HashBytes()), hashSize)
	}

	if len(tx.SenderBytes()) != senderSize {
		return fmt.Errorf("invalid sender size: got %d, want %d", len(tx.SenderBytes()), senderSize)
	}

	if len(tx.SignatureBytes()) != signatureSize {
		return fmt.Errorf("invalid signature size: got %d, want %d", len(tx.SignatureBytes()), signatureSize)
	}

	if n := len(tx.Instruction()); n == 0 || n > maxInstructionLen {
		return fmt.Errorf("invalid instruction length: %d", n)
	}

	if n := len(tx.ArgsBytes()); n > maxArgsSize {
		return fmt.Errorf("args too large: %d bytes (max %d)", n, maxArgsSize)
	}

	return nil
}

// validateHash recomputes the transaction hash and compares it to the declared hash.
// The hash is blake3 of the unsigned transaction (all fields except hash and signature).
func validateHash(tx *types.Transaction) error {
	unsigned := genesis.UnsignedTxBytes(tx.SenderBytes(), string(tx.Instruction()), tx.ArgsBytes(), tx.Nonce())
	expected := blake3.Sum256(unsigned)

	if string(expected[:]) != string(tx.HashBytes()) {
		return fmt.Errorf("hash mismatch")
	}

	return nil
}

// validateSignature verifies the Ed25519 signature over the transaction hash.
func validateSignature(tx *types.Transaction) error {
	if !ed25519.Verify(tx.SenderBytes(), tx.HashBytes(), tx.SignatureBytes()) {
		return errInvalidSignature
	}

	return nil
}
