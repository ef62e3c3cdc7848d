package enums

import "fmt"

// PaymentStatus is the internal status of a ledger entry.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusApproved   PaymentStatus = "APPROVED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusProcessing,
	PaymentStatusApproved,
	PaymentStatusFailed,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// IsTerminal reports whether the status is final for the ledger entry.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusApproved || p == PaymentStatusFailed
}

// Rank orders statuses so reconciliation never moves an entry backwards.
func (p PaymentStatus) Rank() int {
	switch p {
	case PaymentStatusPending:
		return 0
	case PaymentStatusProcessing:
		return 1
	case PaymentStatusApproved, PaymentStatusFailed:
		return 2
	default:
		return -1
	}
}
