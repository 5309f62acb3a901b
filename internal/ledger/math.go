package ledger

import (
	"fmt"
	"math/bits"
)

// checkedAdd returns a + b, or ErrOverflow naming the counter that would wrap.
func checkedAdd(field string, a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %s=%d + %d wraps", ErrOverflow, field, a, b)
	}

	return sum, nil
}

// checkedMul returns a * b, or ErrOverflow.
func checkedMul(field string, a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %s=%d * %d wraps", ErrOverflow, field, a, b)
	}

	return lo, nil
}

// mulDiv returns floor(a * b / d) computed on a 128-bit intermediate.
// Fails with ErrOverflow when the quotient does not fit in 64 bits.
func mulDiv(field string, a, b, d uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)

	// bits.Div64 panics when hi >= d; that is exactly the case where the
	// quotient needs more than 64 bits.
	if hi >= d {
		return 0, fmt.Errorf("%w: %s=%d * %d / %d exceeds 64 bits", ErrOverflow, field, a, b, d)
	}

	quo, _ := bits.Div64(hi, lo, d)

	return quo, nil
}

// normalizeMB folds a mixed GB/MB report into megabytes.
func normalizeMB(gb, mb uint64) (uint64, error) {
	fromGB, err := checkedMul("bandwidth_gb", gb, MBPerGB)
	if err != nil {
		return 0, err
	}

	return checkedAdd("bandwidth_mb", fromGB, mb)
}

// tokensForMB converts megabytes into minted tokens: floor(mb * tokensPerGB / 1024).
// Integer fixed-point keeps results identical on every platform.
func tokensForMB(totalMB, tokensPerGB uint64) (uint64, error) {
	return mulDiv("tokens_minted", totalMB, tokensPerGB, MBPerGB)
}

// settlementFor converts tokens into USDC base units: floor(amount * usdcPerToken / 1e6).
func settlementFor(amount, usdcPerToken uint64) (uint64, error) {
	return mulDiv("settlement_amount", amount, usdcPerToken, USDCScale)
}
