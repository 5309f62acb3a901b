package ledger

import (
	"encoding/hex"
	"fmt"
)

const (
	// MBPerGB converts reported gigabytes into the megabyte unit stored on records.
	MBPerGB = 1024

	// USDCScale is the fixed-point denominator of UsdcPerToken (6 decimals).
	USDCScale = 1_000_000

	// BPSMax is the basis point denominator (100% = 10000).
	BPSMax = 10000

	// DefaultPlatformFeeBPS is the platform fee set at initialize (15.00%).
	DefaultPlatformFeeBPS = 1500

	// DefaultTokensPerGB is the number of tokens minted per full gigabyte.
	DefaultTokensPerGB = 1_000_000

	// DefaultUSDCPerToken is the redemption rate: 0.95 USDC per token.
	DefaultUSDCPerToken = 950_000

	// DefaultReputationScore is assigned to every new user record.
	DefaultReputationScore = 100

	// IdentitySize is the byte length of a participant identity (ed25519 public key).
	IdentitySize = 32
)

// Identity is a 32-byte participant identity.
type Identity [IdentitySize]byte

// String returns the hex encoding of the identity.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 bytes in hex, for logs.
func (id Identity) Short() string {
	return hex.EncodeToString(id[:8])
}

// IdentityFromBytes copies a 32-byte slice into an Identity.
func IdentityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != IdentitySize {
		return id, fmt.Errorf("invalid identity length: got %d, want %d", len(b), IdentitySize)
	}

	copy(id[:], b)

	return id, nil
}

// ParseIdentity decodes a hex-encoded identity.
func ParseIdentity(s string) (Identity, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Identity{}, fmt.Errorf("decode identity:\n%w", err)
	}

	return IdentityFromBytes(b)
}

// Params holds the rate and fee parameters fixed at initialize.
type Params struct {
	PlatformFeeBPS uint16 // PlatformFeeBPS is reserved for a future fee deduction
	TokensPerGB    uint64 // TokensPerGB is the issuance rate per full gigabyte
	USDCPerToken   uint64 // USDCPerToken is the redemption rate scaled by USDCScale
}

// DefaultParams returns the parameters of a fresh deployment.
func DefaultParams() Params {
	return Params{
		PlatformFeeBPS: DefaultPlatformFeeBPS,
		TokensPerGB:    DefaultTokensPerGB,
		USDCPerToken:   DefaultUSDCPerToken,
	}
}

// Validate checks that the parameters describe a usable ledger.
func (p Params) Validate() error {
	if p.PlatformFeeBPS > BPSMax {
		return fmt.Errorf("%w: platform fee %d bps exceeds %d", ErrInvalidParams, p.PlatformFeeBPS, BPSMax)
	}

	if p.TokensPerGB == 0 {
		return fmt.Errorf("%w: tokens per gb must be positive", ErrInvalidParams)
	}

	if p.USDCPerToken == 0 {
		return fmt.Errorf("%w: usdc per token must be positive", ErrInvalidParams)
	}

	return nil
}

// GlobalAggregate is the singleton record tracking totals across all users.
type GlobalAggregate struct {
	Authority         Identity // Authority initialized the deployment
	TotalBandwidthMB  uint64   // TotalBandwidthMB is the sum of every user's bandwidth
	TotalUsers        uint64   // TotalUsers counts registered users
	TotalTokensMinted uint64   // TotalTokensMinted is the sum of every user's tokens earned
	PlatformFeeBPS    uint16   // PlatformFeeBPS is stored but unused by transitions
	TokensPerGB       uint64   // TokensPerGB is the issuance rate
	USDCPerToken      uint64   // USDCPerToken is the redemption rate scaled by USDCScale
}

// UserRecord is the per-participant record of contributions and balances.
type UserRecord struct {
	Owner                Identity // Owner is immutable after registration
	TotalBandwidthMB     uint64   // TotalBandwidthMB is the cumulative reported volume
	TokensEarned         uint64   // TokensEarned is the lifetime credited amount
	TokensClaimed        uint64   // TokensClaimed is the lifetime redeemed amount, <= TokensEarned
	RegistrationTime     int64    // RegistrationTime is unix seconds at registration
	LastContributionTime int64    // LastContributionTime is unix seconds, 0 until the first contribution
	IsActive             bool     // IsActive gates contribute and claim
	ReputationScore      uint16   // ReputationScore is not mutated by current transitions
}

// Unclaimed returns the tokens still available to claim.
func (u *UserRecord) Unclaimed() uint64 {
	if u.TokensClaimed > u.TokensEarned {
		return 0
	}

	return u.TokensEarned - u.TokensClaimed
}

// Contribution is the outcome of a successful contribute.
type Contribution struct {
	BandwidthMB  uint64 // BandwidthMB is the normalized reported volume
	TokensMinted uint64 // TokensMinted is credited to the user and the aggregate
}

// Redemption is the outcome of a successful claim.
// The settlement rail is responsible for paying SettlementAmount.
type Redemption struct {
	TokensClaimed    uint64 // TokensClaimed is the redeemed token amount
	SettlementAmount uint64 // SettlementAmount is in USDC base units (6 decimals)
}
