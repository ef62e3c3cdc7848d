package enums

import "fmt"

// HandoffType names the physical exchange a code authenticates.
type HandoffType string

const (
	HandoffPickupAtStore    HandoffType = "PICKUP_AT_STORE"
	HandoffDeliveryToClient HandoffType = "DELIVERY_TO_CLIENT"
	HandoffReturnPickup     HandoffType = "RETURN_PICKUP"
	HandoffReturnToStore    HandoffType = "RETURN_TO_STORE"
)

var validHandoffTypes = []HandoffType{
	HandoffPickupAtStore,
	HandoffDeliveryToClient,
	HandoffReturnPickup,
	HandoffReturnToStore,
}

// String implements fmt.Stringer.
func (h HandoffType) String() string {
	return string(h)
}

// IsValid reports whether the value is a known HandoffType.
func (h HandoffType) IsValid() bool {
	for _, candidate := range validHandoffTypes {
		if candidate == h {
			return true
		}
	}
	return false
}

// ParseHandoffType converts raw input into a HandoffType.
func ParseHandoffType(value string) (HandoffType, error) {
	for _, candidate := range validHandoffTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid handoff type %q", value)
}
