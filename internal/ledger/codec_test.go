package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestRecordSizes(t *testing.T) {
	if GlobalAggregateSize != 82 {
		t.Errorf("GlobalAggregateSize = %d, want 82", GlobalAggregateSize)
	}

	if UserRecordSize != 83 {
		t.Errorf("UserRecordSize = %d, want 83", UserRecordSize)
	}
}

func TestDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("account:UserAccount"))
	if !bytes.Equal(userDiscriminator[:], sum[:8]) {
		t.Errorf("user discriminator %x, want %x", userDiscriminator, sum[:8])
	}

	if globalDiscriminator == userDiscriminator {
		t.Error("record types share a discriminator")
	}
}

func TestEncodeGlobal_Layout(t *testing.T) {
	g := &GlobalAggregate{
		Authority:         Identity{0xAA},
		TotalBandwidthMB:  1024,
		TotalUsers:        3,
		TotalTokensMinted: 1_000_000,
		PlatformFeeBPS:    1500,
		TokensPerGB:       1_000_000,
		USDCPerToken:      950_000,
	}

	data := EncodeGlobal(g)

	if len(data) != GlobalAggregateSize {
		t.Fatalf("encoded %d bytes, want %d", len(data), GlobalAggregateSize)
	}

	if data[8] != 0xAA {
		t.Error("authority not at offset 8")
	}

	if got := binary.LittleEndian.Uint64(data[48:56]); got != 3 {
		t.Errorf("total_users at offset 48 = %d, want 3", got)
	}

	if got := binary.LittleEndian.Uint16(data[64:66]); got != 1500 {
		t.Errorf("fee at offset 64 = %d, want 1500", got)
	}

	if got := binary.LittleEndian.Uint64(data[74:82]); got != 950_000 {
		t.Errorf("usdc_per_token at offset 74 = %d, want 950000", got)
	}

	decoded, err := DecodeGlobal(data)
	if err != nil {
		t.Fatalf("DecodeGlobal failed: %v", err)
	}

	if *decoded != *g {
		t.Errorf("decoded %+v, want %+v", decoded, g)
	}
}

func TestEncodeUser_Layout(t *testing.T) {
	u := &UserRecord{
		Owner:                Identity{0x01, 0x02},
		TotalBandwidthMB:     math.MaxUint64,
		TokensEarned:         42,
		TokensClaimed:        7,
		RegistrationTime:     1_700_000_000,
		LastContributionTime: -1,
		IsActive:             true,
		ReputationScore:      100,
	}

	data := EncodeUser(u)

	if len(data) != UserRecordSize {
		t.Fatalf("encoded %d bytes, want %d", len(data), UserRecordSize)
	}

	if data[80] != 1 {
		t.Errorf("is_active byte = %d, want 1", data[80])
	}

	if got := binary.LittleEndian.Uint16(data[81:83]); got != 100 {
		t.Errorf("reputation at offset 81 = %d, want 100", got)
	}

	decoded, err := DecodeUser(data)
	if err != nil {
		t.Fatalf("DecodeUser failed: %v", err)
	}

	if *decoded != *u {
		t.Errorf("decoded %+v, want %+v", decoded, u)
	}
}

func TestDecodeRejectsCorruptRecords(t *testing.T) {
	user := EncodeUser(&UserRecord{IsActive: true})
	global := EncodeGlobal(&GlobalAggregate{})

	cases := []struct {
		name string
		err  error
	}{
		{"short user", decodeUserErr(user[:UserRecordSize-1])},
		{"global as user", decodeUserErr(append(global, 0))},
		{"user as global", decodeGlobalErr(user[:GlobalAggregateSize])},
		{"bad flag", decodeUserErr(withByte(user, 80, 2))},
		{"long global", decodeGlobalErr(append(global, 0))},
	}

	for _, c := range cases {
		if !errors.Is(c.err, ErrCorruptRecord) {
			t.Errorf("%s: got %v, want ErrCorruptRecord", c.name, c.err)
		}
	}
}

func decodeUserErr(data []byte) error {
	_, err := DecodeUser(data)
	return err
}

func decodeGlobalErr(data []byte) error {
	_, err := DecodeGlobal(data)
	return err
}

// withByte returns a copy of data with one byte replaced.
func withByte(data []byte, i int, b byte) []byte {
	out := append([]byte(nil), data...)
	out[i] = b
	return out
}

func TestUserKey(t *testing.T) {
	a := Identity{1}
	b := Identity{2}

	ka := UserKey(a)
	if !bytes.HasPrefix(ka, UserPrefix()) {
		t.Errorf("user key %x lacks prefix", ka)
	}

	if len(ka) != len(UserPrefix())+32 {
		t.Errorf("user key length %d", len(ka))
	}

	if !bytes.Equal(ka, UserKey(a)) {
		t.Error("key derivation is not deterministic")
	}

	if bytes.Equal(ka, UserKey(b)) {
		t.Error("distinct identities share a key")
	}
}
