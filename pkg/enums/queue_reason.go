package enums

import "fmt"

// QueueReason records why a lead landed on the waiting queue.
type QueueReason string

const (
	QueueReasonNoActiveSalesperson QueueReason = "no_active_salesperson"
	QueueReasonManualHold          QueueReason = "manual_hold"
	QueueReasonRequeue             QueueReason = "requeue"
)

var validQueueReasons = []QueueReason{
	QueueReasonNoActiveSalesperson,
	QueueReasonManualHold,
	QueueReasonRequeue,
}

// String implements fmt.Stringer.
func (q QueueReason) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QueueReason.
func (q QueueReason) IsValid() bool {
	for _, candidate := range validQueueReasons {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseQueueReason converts raw input into a QueueReason.
func ParseQueueReason(value string) (QueueReason, error) {
	for _, candidate := range validQueueReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid queue reason %q", value)
}
