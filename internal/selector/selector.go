package selector

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is one active salesperson with their current load snapshot.
// LastAssignedAt is nil when the salesperson has never received a lead.
type Candidate struct {
	VendorID       uuid.UUID
	ActiveLeads    int
	LastAssignedAt *time.Time
}

// Pick returns the candidate that should receive the next lead, or nil when
// the slice is empty. Selection is least active load first; ties go to the
// salesperson whose last assignment is oldest, with never-assigned
// salespeople winning over everyone. Remaining ties fall back to vendor id
// so the result is stable for a given snapshot.
func Pick(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if less(c, best) {
			best = c
		}
	}
	return &best
}

func less(a, b Candidate) bool {
	if a.ActiveLeads != b.ActiveLeads {
		return a.ActiveLeads < b.ActiveLeads
	}
	if (a.LastAssignedAt == nil) != (b.LastAssignedAt == nil) {
		return a.LastAssignedAt == nil
	}
	if a.LastAssignedAt != nil && !a.LastAssignedAt.Equal(*b.LastAssignedAt) {
		return a.LastAssignedAt.Before(*b.LastAssignedAt)
	}
	return a.VendorID.String() < b.VendorID.String()
}
