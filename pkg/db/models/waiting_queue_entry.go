package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/pkg/enums"
)

// WaitingQueueEntry holds a lead that could not be assigned at distribution
// time. The partial unique index ux_waiting_queue_unprocessed_lead (lead_id
// WHERE processed = false) makes enqueue idempotent per lead.
type WaitingQueueEntry struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LeadID      uuid.UUID         `gorm:"column:lead_id;type:uuid;not null"`
	ClientID    uuid.UUID         `gorm:"column:client_id;type:uuid;not null"`
	Reason      enums.QueueReason `gorm:"column:reason;type:queue_reason;not null"`
	Priority    int               `gorm:"column:priority;not null;default:0"`
	EnqueuedAt  time.Time         `gorm:"column:enqueued_at;autoCreateTime"`
	Processed   bool              `gorm:"column:processed;not null;default:false"`
	ProcessedAt *time.Time        `gorm:"column:processed_at"`
}

// TableName matches the migration's table name.
func (WaitingQueueEntry) TableName() string {
	return "waiting_queue_entries"
}
