package enums

import "fmt"

// StoreDecision is the store's answer to a bag request.
type StoreDecision string

const (
	StoreDecisionAccept StoreDecision = "ACCEPT"
	StoreDecisionReject StoreDecision = "REJECT"
)

var validStoreDecisions = []StoreDecision{
	StoreDecisionAccept,
	StoreDecisionReject,
}

// String implements fmt.Stringer.
func (d StoreDecision) String() string {
	return string(d)
}

// IsValid reports whether the value is a known StoreDecision.
func (d StoreDecision) IsValid() bool {
	for _, candidate := range validStoreDecisions {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseStoreDecision converts raw input into a StoreDecision.
func ParseStoreDecision(value string) (StoreDecision, error) {
	for _, candidate := range validStoreDecisions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid store decision %q", value)
}
