package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateLead       OutboxAggregateType = "lead"
	AggregateAssignment OutboxAggregateType = "assignment"
	AggregateQueueEntry OutboxAggregateType = "queue_entry"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateLead,
	AggregateAssignment,
	AggregateQueueEntry,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
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

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventLeadAssigned    OutboxEventType = "lead_assigned"
	EventLeadTransferred OutboxEventType = "lead_transferred"
	EventLeadConcluded   OutboxEventType = "lead_concluded"
	EventLeadQueued      OutboxEventType = "lead_queued"
)

var validOutboxEventTypes = []OutboxEventType{
	EventLeadAssigned,
	EventLeadTransferred,
	EventLeadConcluded,
	EventLeadQueued,
}

// IsValid reports whether the value matches the canonical event_type enum.
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
