package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/osoriodev/vendelo-backend/internal/selector"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

// Repository defines persistence operations for the assignment tables.
// Write methods are expected to run inside a transaction bound via WithTx;
// counter adjustments use relative SQL expressions so concurrent
// transactions never lose updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindLead(ctx context.Context, leadID uuid.UUID) (*models.Lead, error)
	FindSalesperson(ctx context.Context, vendorID uuid.UUID) (*models.Salesperson, error)

	// LockActiveAssignment takes a row lock on the lead's active assignment
	// and returns nil when the lead has no active owner.
	LockActiveAssignment(ctx context.Context, leadID uuid.UUID) (*models.Assignment, error)
	FindAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.Assignment, error)
	InsertAssignment(ctx context.Context, row *models.Assignment) (*models.Assignment, error)
	UpdateAssignmentStatus(ctx context.Context, assignmentID uuid.UUID, status enums.AssignmentStatus, updates map[string]any) error
	MarkNotified(ctx context.Context, assignmentID uuid.UUID, at time.Time) error

	AdjustCounterOnAssign(ctx context.Context, vendorID, clientID uuid.UUID, at time.Time) error
	AdjustCounterOnRelease(ctx context.Context, vendorID, clientID uuid.UUID) error
	AdjustCounterOnConclude(ctx context.Context, vendorID, clientID uuid.UUID, won bool) error
	ReconcileCounters(ctx context.Context) (int64, error)

	ListEligibleCandidates(ctx context.Context, clientID uuid.UUID) ([]selector.Candidate, error)
	ListByVendor(ctx context.Context, vendorID, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.Assignment, error)
	Dashboard(ctx context.Context, clientID uuid.UUID) ([]DashboardRow, error)
}
