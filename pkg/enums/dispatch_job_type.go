package enums

import "fmt"

// DispatchJobType is the leg a courier job covers.
type DispatchJobType string

const (
	DispatchJobTypeDelivery DispatchJobType = "DELIVERY"
	DispatchJobTypePickup   DispatchJobType = "PICKUP"
)

var validDispatchJobTypes = []DispatchJobType{
	DispatchJobTypeDelivery,
	DispatchJobTypePickup,
}

// String implements fmt.Stringer.
func (j DispatchJobType) String() string {
	return string(j)
}

// IsValid reports whether the value is a known DispatchJobType.
func (j DispatchJobType) IsValid() bool {
	for _, candidate := range validDispatchJobTypes {
		if candidate == j {
			return true
		}
	}
	return false
}

// ParseDispatchJobType converts raw input into a DispatchJobType.
func ParseDispatchJobType(value string) (DispatchJobType, error) {
	for _, candidate := range validDispatchJobTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch job type %q", value)
}
