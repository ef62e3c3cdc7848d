package enums

import "fmt"

// BagType distinguishes store-curated bags from bags open to extra suggestions.
type BagType string

const (
	BagTypeClosed BagType = "CLOSED"
	BagTypeOpen   BagType = "OPEN"
)

var validBagTypes = []BagType{
	BagTypeClosed,
	BagTypeOpen,
}

// String implements fmt.Stringer.
func (b BagType) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BagType.
func (b BagType) IsValid() bool {
	for _, candidate := range validBagTypes {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBagType converts raw input into a BagType.
func ParseBagType(value string) (BagType, error) {
	for _, candidate := range validBagTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bag type %q", value)
}
