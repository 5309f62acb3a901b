package genesis

import (
	"crypto/ed25519"
	"fmt"
	"time"
)

// Config holds the genesis configuration for bootstrapping a ledger.
type Config struct {
	// PrivateKey is the bootstrap authority's Ed25519 private key.
	PrivateKey ed25519.PrivateKey

	// Now stamps the genesis transactions; zero means time.Now.
	Now time.Time
}

// BuildTransactions creates the genesis transactions for a fresh deployment.
// Today that is a single initialize signed by the authority; rate parameters
// come from the executing node's configuration, not from the transaction.
func BuildTransactions(cfg Config) ([][]byte, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	if len(cfg.PrivateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: %d", len(cfg.PrivateKey))
	}

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}

	initTx, _ := BuildSignedTx(cfg.PrivateKey, InstrInitialize, nil, uint64(now.UnixNano()))

	return [][]byte{initTx}, nil
}
