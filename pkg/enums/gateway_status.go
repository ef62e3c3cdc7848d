package enums

import "fmt"

// GatewayStatus is the normalized status reported by a payment gateway.
type GatewayStatus string

const (
	GatewayStatusApproved  GatewayStatus = "approved"
	GatewayStatusRejected  GatewayStatus = "rejected"
	GatewayStatusCancelled GatewayStatus = "cancelled"
	GatewayStatusPending   GatewayStatus = "pending"
	GatewayStatusInProcess GatewayStatus = "in_process"
)

var validGatewayStatuses = []GatewayStatus{
	GatewayStatusApproved,
	GatewayStatusRejected,
	GatewayStatusCancelled,
	GatewayStatusPending,
	GatewayStatusInProcess,
}

// String implements fmt.Stringer.
func (g GatewayStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayStatus.
func (g GatewayStatus) IsValid() bool {
	for _, candidate := range validGatewayStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGatewayStatus converts raw input into a GatewayStatus.
func ParseGatewayStatus(value string) (GatewayStatus, error) {
	for _, candidate := range validGatewayStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway status %q", value)
}

// PaymentStatus maps the gateway vocabulary onto ledger statuses.
func (g GatewayStatus) PaymentStatus() PaymentStatus {
	switch g {
	case GatewayStatusApproved:
		return PaymentStatusApproved
	case GatewayStatusRejected, GatewayStatusCancelled:
		return PaymentStatusFailed
	case GatewayStatusPending, GatewayStatusInProcess:
		return PaymentStatusProcessing
	default:
		return PaymentStatusPending
	}
}
