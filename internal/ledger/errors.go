package ledger

import "errors"

// Rejection kinds. Every failed operation wraps exactly one of these and
// leaves both records unchanged.
var (
	ErrUserInactive        = errors.New("user account is inactive")
	ErrInvalidBandwidth    = errors.New("invalid bandwidth amount")
	ErrInvalidAmount       = errors.New("invalid token amount")
	ErrUnauthorized        = errors.New("caller does not own the record")
	ErrOverflow            = errors.New("arithmetic overflow")
	ErrAlreadyExists       = errors.New("record already exists")
	ErrNotFound            = errors.New("record not found")
	ErrInsufficientBalance = errors.New("claim exceeds unclaimed tokens")
	ErrInvalidParams       = errors.New("invalid ledger parameters")
	ErrInvariantViolation  = errors.New("ledger invariant violated")
	ErrCorruptRecord       = errors.New("corrupt record")
)

// codes maps each rejection kind to its stable name.
var codes = []struct {
	err  error
	name string
}{
	{ErrUserInactive, "UserInactive"},
	{ErrInvalidBandwidth, "InvalidBandwidth"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrOverflow, "Overflow"},
	{ErrAlreadyExists, "AlreadyExists"},
	{ErrNotFound, "NotFound"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrInvalidParams, "InvalidParams"},
	{ErrInvariantViolation, "InvariantViolation"},
	{ErrCorruptRecord, "CorruptRecord"},
}

// Code returns the kind name of a ledger error, "Internal" for anything else
// and "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}

	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.name
		}
	}

	return "Internal"
}

// IsRejection reports whether err is a ledger rejection rather than a
// storage or internal failure.
func IsRejection(err error) bool {
	code := Code(err)
	return code != "" && code != "Internal" && code != "CorruptRecord" && code != "InvariantViolation"
}
