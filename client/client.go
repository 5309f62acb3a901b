package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"BandwidthBazaar/internal/genesis"
	"BandwidthBazaar/internal/network"
)

// Client connects to a ledger node via HTTP, optionally submitting
// transactions over the node's QUIC ingress.
type Client struct {
	baseURL string        // baseURL is the node root, e.g. "http://127.0.0.1:8080"
	http    *http.Client  // http performs the requests
	quic    *network.Conn // quic carries transactions when set by DialQUIC
}

// Wallet holds a keypair and signs ledger transactions.
type Wallet struct {
	privKey ed25519.PrivateKey // privKey is the Ed25519 private key
	pubKey  ed25519.PublicKey  // pubKey is the Ed25519 public key

	mu        sync.Mutex
	lastNonce uint64 // lastNonce keeps nonces strictly increasing
}

// Receipt is the node's answer to an applied transaction.
type Receipt struct {
	TxHash           string    `json:"txHash"`
	Instruction      string    `json:"instruction"`
	Owner            string    `json:"owner"`
	BandwidthMB      uint64    `json:"bandwidthMb"`
	TokensMinted     uint64    `json:"tokensMinted"`
	TokensClaimed    uint64    `json:"tokensClaimed"`
	SettlementAmount uint64    `json:"settlementAmount"`
	Time             time.Time `json:"time"`
}

// Status is the global aggregate as reported by GET /status.
type Status struct {
	Initialized       bool   `json:"initialized"`
	Authority         string `json:"authority"`
	TotalBandwidthMB  uint64 `json:"totalBandwidthMb"`
	TotalUsers        uint64 `json:"totalUsers"`
	TotalTokensMinted uint64 `json:"totalTokensMinted"`
	PlatformFeeBPS    uint16 `json:"platformFeeBps"`
	TokensPerGB       uint64 `json:"tokensPerGb"`
	USDCPerToken      uint64 `json:"usdcPerToken"`
}

// User is a user record as reported by GET /users/{pubkey}.
type User struct {
	Owner                string     `json:"owner"`
	TotalBandwidthMB     uint64     `json:"totalBandwidthMb"`
	TokensEarned         uint64     `json:"tokensEarned"`
	TokensClaimed        uint64     `json:"tokensClaimed"`
	Unclaimed            uint64     `json:"unclaimed"`
	RegistrationTime     time.Time  `json:"registrationTime"`
	LastContributionTime *time.Time `json:"lastContributionTime"`
	IsActive             bool       `json:"isActive"`
	ReputationScore      uint16     `json:"reputationScore"`
}

// HistoryEntry is one journaled operation.
type HistoryEntry struct {
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

// Snapshot is a zstd-compressed ledger snapshot with its advertised checksum.
type Snapshot struct {
	Data     []byte // Data is the compressed snapshot
	Checksum string // Checksum is the hex blake3 checksum
	Records  int    // Records is the number of ledger records
}

// NewClient creates a client for the node at nodeAddr ("host:port" or a URL)
// and checks that it answers /health.
func NewClient(nodeAddr string) (*Client, error) {
	base := nodeAddr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	c := &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	var health map[string]string
	if err := c.get("/health", &health); err != nil {
		return nil, fmt.Errorf("health check:\n%w", err)
	}

	return c, nil
}

// Status returns the global aggregate.
func (c *Client) Status() (*Status, error) {
	var s Status
	if err := c.get("/status", &s); err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}

	return &s, nil
}

// User returns the record of the given public key.
func (c *Client) User(pubkey [32]byte) (*User, error) {
	var u User
	if err := c.get("/users/"+hex.EncodeToString(pubkey[:]), &u); err != nil {
		return nil, fmt.Errorf("get user:\n%w", err)
	}

	return &u, nil
}

// History returns up to limit journaled operations of pubkey, newest first.
func (c *Client) History(pubkey [32]byte, limit int) ([]HistoryEntry, error) {
	path := "/users/" + hex.EncodeToString(pubkey[:]) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var entries []HistoryEntry
	if err := c.get(path, &entries); err != nil {
		return nil, fmt.Errorf("get history:\n%w", err)
	}

	return entries, nil
}

// Snapshot downloads a compressed snapshot of the ledger.
func (c *Client) Snapshot() (*Snapshot, error) {
	data, header, err := c.getRaw("/snapshot")
	if err != nil {
		return nil, fmt.Errorf("get snapshot:\n%w", err)
	}

	records, _ := strconv.Atoi(header.Get("X-Snapshot-Records"))

	return &Snapshot{
		Data:     data,
		Checksum: header.Get("X-Snapshot-Checksum"),
		Records:  records,
	}, nil
}

// NewWallet creates a new wallet with a random Ed25519 keypair.
func NewWallet() *Wallet {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	return &Wallet{
		privKey: priv,
		pubKey:  pub,
	}
}

// WalletFromKey wraps an existing Ed25519 private key.
func WalletFromKey(priv ed25519.PrivateKey) (*Wallet, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(priv), ed25519.PrivateKeySize)
	}

	return &Wallet{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Pubkey returns the wallet's public key as a 32-byte array.
func (w *Wallet) Pubkey() [32]byte {
	var pk [32]byte
	copy(pk[:], w.pubKey)
	return pk
}

// Initialize creates the ledger with this wallet as authority.
// Rates come from the node's configuration.
func (w *Wallet) Initialize(c *Client) (*Receipt, error) {
	return w.send(c, genesis.InstrInitialize, nil)
}

// Register creates this wallet's user record.
func (w *Wallet) Register(c *Client) (*Receipt, error) {
	return w.send(c, genesis.InstrRegisterUser, nil)
}

// Contribute reports gb gigabytes plus mb megabytes of shared bandwidth.
func (w *Wallet) Contribute(c *Client, gb, mb uint64) (*Receipt, error) {
	return w.send(c, genesis.InstrContribute, genesis.EncodeContributeArgs(gb, mb))
}

// Claim redeems amount tokens. The receipt carries the settlement owed.
func (w *Wallet) Claim(c *Client, amount uint64) (*Receipt, error) {
	return w.send(c, genesis.InstrClaim, genesis.EncodeClaimArgs(amount))
}

// send signs and submits one instruction.
func (w *Wallet) send(c *Client, instruction string, args []byte) (*Receipt, error) {
	txBytes, _ := genesis.BuildSignedTx(w.privKey, instruction, args, w.nextNonce())

	var r Receipt
	if err := c.submitTx(txBytes, &r); err != nil {
		return nil, fmt.Errorf("submit %s tx:\n%w", instruction, err)
	}

	return &r, nil
}

// nextNonce returns the current time in unix nanoseconds, bumped past the
// previous nonce so two identical instructions never share a hash.
func (w *Wallet) nextNonce() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := uint64(time.Now().UnixNano())
	if n <= w.lastNonce {
		n = w.lastNonce + 1
	}

	w.lastNonce = n

	return n
}
