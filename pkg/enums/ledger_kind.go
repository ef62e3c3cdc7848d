package enums

import "fmt"

// LedgerKind classifies a ledger entry.
type LedgerKind string

const (
	LedgerKindAuthorization LedgerKind = "AUTHORIZATION"
	LedgerKindCapture       LedgerKind = "CAPTURE"
	LedgerKindRefund        LedgerKind = "REFUND"
)

var validLedgerKinds = []LedgerKind{
	LedgerKindAuthorization,
	LedgerKindCapture,
	LedgerKindRefund,
}

// String implements fmt.Stringer.
func (k LedgerKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known LedgerKind.
func (k LedgerKind) IsValid() bool {
	for _, candidate := range validLedgerKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseLedgerKind converts raw input into a LedgerKind.
func ParseLedgerKind(value string) (LedgerKind, error) {
	for _, candidate := range validLedgerKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger kind %q", value)
}
