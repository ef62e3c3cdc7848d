package enums

import "fmt"

// BagItemStatus tracks a single garment inside a bag.
type BagItemStatus string

const (
	BagItemStatusIncluded    BagItemStatus = "INCLUDED"
	BagItemStatusNotIncluded BagItemStatus = "NOT_INCLUDED"
	BagItemStatusKept        BagItemStatus = "KEPT"
	BagItemStatusReturned    BagItemStatus = "RETURNED"
)

var validBagItemStatuses = []BagItemStatus{
	BagItemStatusIncluded,
	BagItemStatusNotIncluded,
	BagItemStatusKept,
	BagItemStatusReturned,
}

// String implements fmt.Stringer.
func (s BagItemStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BagItemStatus.
func (s BagItemStatus) IsValid() bool {
	for _, candidate := range validBagItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBagItemStatus converts raw input into a BagItemStatus.
func ParseBagItemStatus(value string) (BagItemStatus, error) {
	for _, candidate := range validBagItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bag item status %q", value)
}
