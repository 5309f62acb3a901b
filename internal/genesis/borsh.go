package genesis

import (
	"encoding/binary"
	"fmt"
)

const (
	// contributeArgsSize is u64 bandwidth_gb + u64 bandwidth_mb.
	contributeArgsSize = 16

	// claimArgsSize is u64 bw_amount.
	claimArgsSize = 8
)

// ContributeArgs are the arguments of contribute_bandwidth.
type ContributeArgs struct {
	BandwidthGB uint64 // BandwidthGB is the whole gigabytes reported
	BandwidthMB uint64 // BandwidthMB is the extra megabytes reported
}

// ClaimArgs are the arguments of claim_rewards.
type ClaimArgs struct {
	Amount uint64 // Amount is the number of tokens to redeem
}

// EncodeContributeArgs encodes contribute_bandwidth arguments in Borsh format.
// Format: u64 bandwidth_gb (LE) + u64 bandwidth_mb (LE)
func EncodeContributeArgs(gb, mb uint64) []byte {
	buf := make([]byte, contributeArgsSize)
	binary.LittleEndian.PutUint64(buf[0:8], gb)
	binary.LittleEndian.PutUint64(buf[8:16], mb)

	return buf
}

// DecodeContributeArgs decodes contribute_bandwidth arguments.
func DecodeContributeArgs(data []byte) (ContributeArgs, error) {
	if len(data) != contributeArgsSize {
		return ContributeArgs{}, fmt.Errorf("contribute args: got %d bytes, want %d", len(data), contributeArgsSize)
	}

	return ContributeArgs{
		BandwidthGB: binary.LittleEndian.Uint64(data[0:8]),
		BandwidthMB: binary.LittleEndian.Uint64(data[8:16]),
	}, nil
}

// EncodeClaimArgs encodes claim_rewards arguments in Borsh format.
// Format: u64 bw_amount (LE)
func EncodeClaimArgs(amount uint64) []byte {
	buf := make([]byte, claimArgsSize)
	binary.LittleEndian.PutUint64(buf, amount)

	return buf
}

// DecodeClaimArgs decodes claim_rewards arguments.
func DecodeClaimArgs(data []byte) (ClaimArgs, error) {
	if len(data) != claimArgsSize {
		return ClaimArgs{}, fmt.Errorf("claim args: got %d bytes, want %d", len(data), claimArgsSize)
	}

	return ClaimArgs{Amount: binary.LittleEndian.Uint64(data)}, nil
}
