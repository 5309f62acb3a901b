package ledger

import (
	"errors"
	"math"
	"testing"
)

func TestTokensForMB(t *testing.T) {
	cases := []struct {
		mb, rate, want uint64
	}{
		{1024, 1_000_000, 1_000_000},
		{512, 1_000_000, 500_000},
		{1, 1_000_000, 976},
		{1, 1000, 0},
		{3 * 1024, 7, 21},
	}

	for _, c := range cases {
		got, err := tokensForMB(c.mb, c.rate)
		if err != nil {
			t.Fatalf("tokensForMB(%d, %d) failed: %v", c.mb, c.rate, err)
		}

		if got != c.want {
			t.Errorf("tokensForMB(%d, %d) = %d, want %d", c.mb, c.rate, got, c.want)
		}
	}
}

func TestTokensForMB_WideIntermediate(t *testing.T) {
	// mb * rate exceeds 64 bits but the quotient does not.
	mb := uint64(math.MaxUint64 / 1024)
	got, err := tokensForMB(mb, 1024)
	if err != nil {
		t.Fatalf("tokensForMB failed: %v", err)
	}

	if got != mb {
		t.Errorf("got %d, want %d", got, mb)
	}

	// Quotient itself does not fit.
	_, err = tokensForMB(math.MaxUint64, 2048)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestSettlementFor(t *testing.T) {
	got, err := settlementFor(1_000_000, 950_000)
	if err != nil {
		t.Fatalf("settlementFor failed: %v", err)
	}

	if got != 950_000 {
		t.Errorf("settlement = %d, want 950000", got)
	}

	// Needs a 128-bit intermediate: MaxUint64 * 950000 / 1e6.
	got, err = settlementFor(math.MaxUint64, 950_000)
	if err != nil {
		t.Fatalf("settlementFor failed: %v", err)
	}

	want := uint64(17524406870024074034) // floor((2^64-1) * 0.95)
	if got != want {
		t.Errorf("settlement = %d, want %d", got, want)
	}
}

func TestCheckedAdd(t *testing.T) {
	if _, err := checkedAdd("x", math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}

	sum, err := checkedAdd("x", math.MaxUint64-1, 1)
	if err != nil || sum != math.MaxUint64 {
		t.Errorf("got %d, %v", sum, err)
	}
}

func TestNormalizeMB(t *testing.T) {
	got, err := normalizeMB(2, 100)
	if err != nil || got != 2148 {
		t.Errorf("normalizeMB(2, 100) = %d, %v; want 2148", got, err)
	}

	if _, err := normalizeMB(1<<54, 0); !errors.Is(err, ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestCode(t *testing.T) {
	if Code(nil) != "" {
		t.Error("nil error should have empty code")
	}

	if got := Code(errors.New("disk on fire")); got != "Internal" {
		t.Errorf("unknown error code = %q", got)
	}

	_, err := checkedAdd("x", math.MaxUint64, 1)
	if got := Code(err); got != "Overflow" {
		t.Errorf("Code = %q, want Overflow", got)
	}

	if !IsRejection(err) {
		t.Error("overflow should be a rejection")
	}

	if IsRejection(ErrCorruptRecord) {
		t.Error("corrupt record is not a rejection")
	}
}
