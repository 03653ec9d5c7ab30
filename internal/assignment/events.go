package assignment

import (
	"time"

	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/pkg/enums"
)

// LeadAssignedEvent is emitted when a lead gains an active owner, whether by
// automatic distribution, manual assignment, or a queue drain.
type LeadAssignedEvent struct {
	LeadID           uuid.UUID `json:"lead_id"`
	AssignmentID     uuid.UUID `json:"assignment_id"`
	VendorID         uuid.UUID `json:"vendor_id"`
	ClientID         uuid.UUID `json:"client_id"`
	AssignedAt       time.Time `json:"assigned_at"`
	DegradedTransfer bool      `json:"degraded_transfer,omitempty"`
}

// LeadTransferredEvent is emitted when an active assignment moves between
// salespeople in one transaction.
type LeadTransferredEvent struct {
	LeadID           uuid.UUID `json:"lead_id"`
	FromAssignmentID uuid.UUID `json:"from_assignment_id"`
	ToAssignmentID   uuid.UUID `json:"to_assignment_id"`
	FromVendorID     uuid.UUID `json:"from_vendor_id"`
	ToVendorID       uuid.UUID `json:"to_vendor_id"`
	ClientID         uuid.UUID `json:"client_id"`
	Reason           *string   `json:"reason,omitempty"`
	TransferredAt    time.Time `json:"transferred_at"`
}

// LeadConcludedEvent is emitted when an active assignment closes.
type LeadConcludedEvent struct {
	LeadID       uuid.UUID `json:"lead_id"`
	AssignmentID uuid.UUID `json:"assignment_id"`
	VendorID     uuid.UUID `json:"vendor_id"`
	ClientID     uuid.UUID `json:"client_id"`
	Won          bool      `json:"won"`
	ConcludedAt  time.Time `json:"concluded_at"`
}

// LeadQueuedEvent is emitted when distribution parks a lead in the waiting
// queue instead of assigning it.
type LeadQueuedEvent struct {
	LeadID     uuid.UUID         `json:"lead_id"`
	EntryID    uuid.UUID         `json:"entry_id"`
	ClientID   uuid.UUID         `json:"client_id"`
	Reason     enums.QueueReason `json:"reason"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}
