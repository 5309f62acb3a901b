package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const (
	// discriminatorSize is the length of the record type tag.
	discriminatorSize = 8

	// GlobalAggregateSize is the encoded size of a GlobalAggregate.
	// Layout: disc(8) + authority(32) + 3 counters(24) + fee(2) + 2 rates(16).
	GlobalAggregateSize = discriminatorSize + IdentitySize + 8 + 8 + 8 + 2 + 8 + 8

	// UserRecordSize is the encoded size of a UserRecord.
	// Layout: disc(8) + owner(32) + 3 counters(24) + 2 timestamps(16) + flag(1) + score(2).
	UserRecordSize = discriminatorSize + IdentitySize + 8 + 8 + 8 + 8 + 8 + 1 + 2
)

// Record tags are the first 8 bytes of sha256("account:<Name>"), which keeps
// records byte-compatible with accounts written by the original deployment.
var (
	globalDiscriminator = discriminator("GlobalState")
	userDiscriminator   = discriminator("UserAccount")
)

// discriminator derives the 8-byte tag of a record type name.
func discriminator(name string) [discriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))

	var d [discriminatorSize]byte
	copy(d[:], sum[:discriminatorSize])

	return d
}

// EncodeGlobal serializes the aggregate in its fixed little-endian layout.
func EncodeGlobal(g *GlobalAggregate) []byte {
	buf := make([]byte, GlobalAggregateSize)
	copy(buf[0:8], globalDiscriminator[:])
	copy(buf[8:40], g.Authority[:])
	binary.LittleEndian.PutUint64(buf[40:48], g.TotalBandwidthMB)
	binary.LittleEndian.PutUint64(buf[48:56], g.TotalUsers)
	binary.LittleEndian.PutUint64(buf[56:64], g.TotalTokensMinted)
	binary.LittleEndian.PutUint16(buf[64:66], g.PlatformFeeBPS)
	binary.LittleEndian.PutUint64(buf[66:74], g.TokensPerGB)
	binary.LittleEndian.PutUint64(buf[74:82], g.USDCPerToken)

	return buf
}

// DecodeGlobal parses an encoded aggregate.
func DecodeGlobal(data []byte) (*GlobalAggregate, error) {
	if len(data) != GlobalAggregateSize {
		return nil, fmt.Errorf("%w: global aggregate is %d bytes, want %d", ErrCorruptRecord, len(data), GlobalAggregateSize)
	}

	if !bytes.Equal(data[0:8], globalDiscriminator[:]) {
		return nil, fmt.Errorf("%w: global aggregate discriminator %x", ErrCorruptRecord, data[0:8])
	}

	g := &GlobalAggregate{
		TotalBandwidthMB:  binary.LittleEndian.Uint64(data[40:48]),
		TotalUsers:        binary.LittleEndian.Uint64(data[48:56]),
		TotalTokensMinted: binary.LittleEndian.Uint64(data[56:64]),
		PlatformFeeBPS:    binary.LittleEndian.Uint16(data[64:66]),
		TokensPerGB:       binary.LittleEndian.Uint64(data[66:74]),
		USDCPerToken:      binary.LittleEndian.Uint64(data[74:82]),
	}
	copy(g.Authority[:], data[8:40])

	return g, nil
}

// EncodeUser serializes a user record in its fixed little-endian layout.
func EncodeUser(u *UserRecord) []byte {
	buf := make([]byte, UserRecordSize)
	copy(buf[0:8], userDiscriminator[:])
	copy(buf[8:40], u.Owner[:])
	binary.LittleEndian.PutUint64(buf[40:48], u.TotalBandwidthMB)
	binary.LittleEndian.PutUint64(buf[48:56], u.TokensEarned)
	binary.LittleEndian.PutUint64(buf[56:64], u.TokensClaimed)
	binary.LittleEndian.PutUint64(buf[64:72], uint64(u.RegistrationTime))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(u.LastContributionTime))

	if u.IsActive {
		buf[80] = 1
	}

	binary.LittleEndian.PutUint16(buf[81:83], u.ReputationScore)

	return buf
}

// DecodeUser parses an encoded user record.
func DecodeUser(data []byte) (*UserRecord, error) {
	if len(data) != UserRecordSize {
		return nil, fmt.Errorf("%w: user record is %d bytes, want %d", ErrCorruptRecord, len(data), UserRecordSize)
	}

	if !bytes.Equal(data[0:8], userDiscriminator[:]) {
		return nil, fmt.Errorf("%w: user record discriminator %x", ErrCorruptRecord, data[0:8])
	}

	if data[80] > 1 {
		return nil, fmt.Errorf("%w: invalid is_active byte %d", ErrCorruptRecord, data[80])
	}

	u := &UserRecord{
		TotalBandwidthMB:     binary.LittleEndian.Uint64(data[40:48]),
		TokensEarned:         binary.LittleEndian.Uint64(data[48:56]),
		TokensClaimed:        binary.LittleEndian.Uint64(data[56:64]),
		RegistrationTime:     int64(binary.LittleEndian.Uint64(data[64:72])),
		LastContributionTime: int64(binary.LittleEndian.Uint64(data[72:80])),
		IsActive:             data[80] == 1,
		ReputationScore:      binary.LittleEndian.Uint16(data[81:83]),
	}
	copy(u.Owner[:], data[8:40])

	return u, nil
}
