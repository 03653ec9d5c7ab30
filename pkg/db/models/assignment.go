package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/pkg/enums"
)

// Assignment binds one lead to one salesperson for a period of the sales
// cycle. Rows are never deleted; status transitions keep the audit trail.
// The partial unique index ux_assignments_active_lead (lead_id WHERE
// status='active') enforces at most one active owner per lead.
type Assignment struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LeadID         uuid.UUID              `gorm:"column:lead_id;type:uuid;not null"`
	VendorID       uuid.UUID              `gorm:"column:vendor_id;type:uuid;not null"`
	ClientID       uuid.UUID              `gorm:"column:client_id;type:uuid;not null"`
	AssignedBy     *uuid.UUID             `gorm:"column:assigned_by;type:uuid"`
	Status         enums.AssignmentStatus `gorm:"column:status;type:assignment_status;not null;default:'active'"`
	Notified       bool                   `gorm:"column:notified;not null;default:false"`
	NotifiedAt     *time.Time             `gorm:"column:notified_at"`
	TransferReason *string                `gorm:"column:transfer_reason;type:text"`
	Won            *bool                  `gorm:"column:won"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
