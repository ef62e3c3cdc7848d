package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateBag         OutboxAggregateType = "bag"
	AggregateLedgerEntry OutboxAggregateType = "ledger_entry"
	AggregateDispatchJob OutboxAggregateType = "dispatch_job"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBag,
	AggregateLedgerEntry,
	AggregateDispatchJob,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventBagCreated           OutboxEventType = "bag_created"
	EventBagStatusChanged     OutboxEventType = "bag_status_changed"
	EventLedgerEntryRecorded  OutboxEventType = "ledger_entry_recorded"
	EventLedgerEntryUpdated   OutboxEventType = "ledger_entry_updated"
	EventDispatchJobPublished OutboxEventType = "dispatch_job_published"
	EventDispatchJobClaimed   OutboxEventType = "dispatch_job_claimed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBagCreated,
	EventBagStatusChanged,
	EventLedgerEntryRecorded,
	EventLedgerEntryUpdated,
	EventDispatchJobPublished,
	EventDispatchJobClaimed,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why the publisher gave up on a row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means the broker kept failing until the
	// retry budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable means the row itself is unpublishable:
	// unknown event type, bad envelope, or no topic.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

// IsValid reports whether the value is a known OutboxDLQErrorReason.
func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}
