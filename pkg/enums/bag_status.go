package enums

import "fmt"

// BagStatus is the lifecycle state of a bag.
type BagStatus string

const (
	BagStatusRequested              BagStatus = "REQUESTED"
	BagStatusUnderReview            BagStatus = "UNDER_REVIEW"
	BagStatusRejected               BagStatus = "REJECTED"
	BagStatusPreparing              BagStatus = "PREPARING"
	BagStatusAwaitingCourier        BagStatus = "AWAITING_COURIER"
	BagStatusCourierEnRouteToStore  BagStatus = "COURIER_EN_ROUTE_TO_STORE"
	BagStatusInTransitToClient      BagStatus = "IN_TRANSIT_TO_CLIENT"
	BagStatusDelivered              BagStatus = "DELIVERED"
	BagStatusAwaitingReturnCourier  BagStatus = "AWAITING_RETURN_COURIER"
	BagStatusCourierEnRouteToPickup BagStatus = "COURIER_EN_ROUTE_TO_PICKUP"
	BagStatusInTransitReturn        BagStatus = "IN_TRANSIT_RETURN"
	BagStatusFinalized              BagStatus = "FINALIZED"
	BagStatusCancelled              BagStatus = "CANCELLED"
)

var validBagStatuses = []BagStatus{
	BagStatusRequested,
	BagStatusUnderReview,
	BagStatusRejected,
	BagStatusPreparing,
	BagStatusAwaitingCourier,
	BagStatusCourierEnRouteToStore,
	BagStatusInTransitToClient,
	BagStatusDelivered,
	BagStatusAwaitingReturnCourier,
	BagStatusCourierEnRouteToPickup,
	BagStatusInTransitReturn,
	BagStatusFinalized,
	BagStatusCancelled,
}

// String implements fmt.Stringer.
func (b BagStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BagStatus.
func (b BagStatus) IsValid() bool {
	for _, candidate := range validBagStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBagStatus converts raw input into a BagStatus.
func ParseBagStatus(value string) (BagStatus, error) {
	for _, candidate := range validBagStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bag status %q", value)
}

// IsTerminal reports whether no further transition may leave the status.
func (b BagStatus) IsTerminal() bool {
	switch b {
	case BagStatusFinalized, BagStatusRejected, BagStatusCancelled:
		return true
	default:
		return false
	}
}
