package enums

import "fmt"

// DispatchJobStatus tracks whether a job is still advertised.
type DispatchJobStatus string

const (
	DispatchJobStatusOpen      DispatchJobStatus = "OPEN"
	DispatchJobStatusClaimed   DispatchJobStatus = "CLAIMED"
	DispatchJobStatusWithdrawn DispatchJobStatus = "WITHDRAWN"
)

var validDispatchJobStatuses = []DispatchJobStatus{
	DispatchJobStatusOpen,
	DispatchJobStatusClaimed,
	DispatchJobStatusWithdrawn,
}

// String implements fmt.Stringer.
func (j DispatchJobStatus) String() string {
	return string(j)
}

// IsValid reports whether the value is a known DispatchJobStatus.
func (j DispatchJobStatus) IsValid() bool {
	for _, candidate := range validDispatchJobStatuses {
		if candidate == j {
			return true
		}
	}
	return false
}

// ParseDispatchJobStatus converts raw input into a DispatchJobStatus.
func ParseDispatchJobStatus(value string) (DispatchJobStatus, error) {
	for _, candidate := range validDispatchJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch job status %q", value)
}
