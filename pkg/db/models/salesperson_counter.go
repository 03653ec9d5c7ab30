package models

import (
	"time"

	"github.com/google/uuid"
)

// SalespersonCounter is the materialized per-vendor load row the selector
// reads. active_leads must always equal the live count of active assignments
// for the vendor; every status change adjusts it atomically in the same
// transaction, never via application-side read-modify-write.
type SalespersonCounter struct {
	VendorID       uuid.UUID  `gorm:"column:vendor_id;type:uuid;primaryKey"`
	ClientID       uuid.UUID  `gorm:"column:client_id;type:uuid;primaryKey"`
	TotalLeads     int        `gorm:"column:total_leads;not null;default:0"`
	ActiveLeads    int        `gorm:"column:active_leads;not null;default:0"`
	ConcludedLeads int        `gorm:"column:concluded_leads;not null;default:0"`
	LastAssignedAt *time.Time `gorm:"column:last_assigned_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the plural-noun convention explicit for the composite key table.
func (SalespersonCounter) TableName() string {
	return "salesperson_counters"
}
