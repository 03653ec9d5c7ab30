package assignment

import (
	"time"

	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
)

// ListFilters narrows assignment listings.
type ListFilters struct {
	Status   *enums.AssignmentStatus
	VendorID *uuid.UUID
}

// AssignmentList is one page of assignments plus the cursor for the next page.
type AssignmentList struct {
	Items      []models.Assignment
	NextCursor string
}

// DashboardRow is one salesperson's load summary for the distribution
// dashboard. Ordering is most-loaded first so managers see pressure at the
// top; never-assigned salespeople sort ahead of equally loaded peers.
type DashboardRow struct {
	VendorID       uuid.UUID  `json:"vendor_id"`
	Name           string     `json:"name"`
	Active         bool       `json:"active"`
	TotalLeads     int        `json:"total_leads"`
	ActiveLeads    int        `json:"active_leads"`
	ConcludedLeads int        `json:"concluded_leads"`
	LastAssignedAt *time.Time `json:"last_assigned_at,omitempty"`
}

// Actor identifies who requested a lifecycle change.
type Actor struct {
	UserID   uuid.UUID
	ClientID uuid.UUID
	Role     string
}

// AssignInput assigns a lead to a specific salesperson (manual path).
type AssignInput struct {
	LeadID   uuid.UUID
	VendorID uuid.UUID
	Actor    Actor
}

// TransferInput moves a lead's active assignment to a new salesperson.
type TransferInput struct {
	LeadID   uuid.UUID
	VendorID uuid.UUID
	Reason   *string
	Actor    Actor
}

// ConcludeInput closes a lead's active assignment. Won records whether the
// sales cycle ended in a win and drives the concluded counter.
type ConcludeInput struct {
	LeadID uuid.UUID
	Won    bool
	Actor  Actor
}
