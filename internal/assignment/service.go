package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/osoriodev/vendelo-backend/pkg/db"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	pkgerrors "github.com/osoriodev/vendelo-backend/pkg/errors"
	"github.com/osoriodev/vendelo-backend/pkg/outbox"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines the lifecycle operations a lead assignment can go through.
type Service interface {
	Assign(ctx context.Context, input AssignInput) (*models.Assignment, error)
	Transfer(ctx context.Context, input TransferInput) (*models.Assignment, error)
	Conclude(ctx context.Context, input ConcludeInput) error
	MarkNotified(ctx context.Context, assignmentID uuid.UUID) error
	ListByVendor(ctx context.Context, vendorID, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error)
	ListAll(ctx context.Context, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.Assignment, error)
	Dashboard(ctx context.Context, clientID uuid.UUID) ([]DashboardRow, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds an assignment service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		now:    time.Now,
	}, nil
}

// Assign gives the lead to a specific salesperson. Returns a conflict when
// the lead already has an active owner and a state conflict when the
// salesperson cannot receive leads.
func (s *service) Assign(ctx context.Context, input AssignInput) (*models.Assignment, error) {
	if err := validateActor(input.Actor); err != nil {
		return nil, err
	}
	if input.LeadID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead id required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	var created *models.Assignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		lead, vendor, err := s.loadPair(ctx, repo, input.LeadID, input.VendorID, input.Actor.ClientID)
		if err != nil {
			return err
		}

		existing, err := repo.LockActiveAssignment(ctx, lead.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock active assignment")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "lead already has an active assignment")
		}

		created, err = s.openAssignment(ctx, tx, repo, lead, vendor, &input.Actor, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Transfer moves the lead's active assignment to a new salesperson in one
// transaction. When the lead has no active owner the operation degrades to a
// plain assignment and the emitted event carries a degraded marker.
func (s *service) Transfer(ctx context.Context, input TransferInput) (*models.Assignment, error) {
	if err := validateActor(input.Actor); err != nil {
		return nil, err
	}
	if input.LeadID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead id required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	var created *models.Assignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		lead, vendor, err := s.loadPair(ctx, repo, input.LeadID, input.VendorID, input.Actor.ClientID)
		if err != nil {
			return err
		}

		current, err := repo.LockActiveAssignment(ctx, lead.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock active assignment")
		}

		if current == nil {
			created, err = s.openAssignment(ctx, tx, repo, lead, vendor, &input.Actor, true)
			return err
		}

		if current.VendorID == vendor.ID {
			return pkgerrors.New(pkgerrors.CodeConflict, "lead is already assigned to this salesperson")
		}

		now := s.now()
		updates := map[string]any{"updated_at": now}
		if input.Reason != nil {
			updates["transfer_reason"] = *input.Reason
		}
		if err := repo.UpdateAssignmentStatus(ctx, current.ID, enums.AssignmentStatusTransferred, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close transferred assignment")
		}
		if err := repo.AdjustCounterOnRelease(ctx, current.VendorID, current.ClientID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release source counter")
		}

		row := &models.Assignment{
			LeadID:     lead.ID,
			VendorID:   vendor.ID,
			ClientID:   lead.ClientID,
			AssignedBy: &input.Actor.UserID,
			Status:     enums.AssignmentStatusActive,
		}
		created, err = repo.InsertAssignment(ctx, row)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert transferred assignment")
		}
		if err := repo.AdjustCounterOnAssign(ctx, vendor.ID, lead.ClientID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump destination counter")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventLeadTransferred,
			AggregateType: enums.AggregateLead,
			AggregateID:   lead.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: LeadTransferredEvent{
				LeadID:           lead.ID,
				FromAssignmentID: current.ID,
				ToAssignmentID:   created.ID,
				FromVendorID:     current.VendorID,
				ToVendorID:       vendor.ID,
				ClientID:         lead.ClientID,
				Reason:           input.Reason,
				TransferredAt:    now,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Conclude closes the lead's active assignment.
func (s *service) Conclude(ctx context.Context, input ConcludeInput) error {
	if err := validateActor(input.Actor); err != nil {
		return err
	}
	if input.LeadID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "lead id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.LockActiveAssignment(ctx, input.LeadID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock active assignment")
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "lead has no active assignment")
		}
		if current.ClientID != input.Actor.ClientID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "lead belongs to another client")
		}

		now := s.now()
		if err := repo.UpdateAssignmentStatus(ctx, current.ID, enums.AssignmentStatusConcluded, map[string]any{
			"updated_at": now,
			"won":        input.Won,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "conclude assignment")
		}
		if err := repo.AdjustCounterOnConclude(ctx, current.VendorID, current.ClientID, input.Won); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust concluded counter")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventLeadConcluded,
			AggregateType: enums.AggregateLead,
			AggregateID:   input.LeadID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: LeadConcludedEvent{
				LeadID:       input.LeadID,
				AssignmentID: current.ID,
				VendorID:     current.VendorID,
				ClientID:     current.ClientID,
				Won:          input.Won,
				ConcludedAt:  now,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
}

// MarkNotified flags the assignment once the notification intent has been
// delivered. Safe to call more than once.
func (s *service) MarkNotified(ctx context.Context, assignmentID uuid.UUID) error {
	if assignmentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "assignment id required")
	}
	if err := s.repo.MarkNotified(ctx, assignmentID, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark assignment notified")
	}
	return nil
}

func (s *service) ListByVendor(ctx context.Context, vendorID, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	list, err := s.repo.ListByVendor(ctx, vendorID, clientID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor assignments")
	}
	return list, nil
}

func (s *service) ListAll(ctx context.Context, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	list, err := s.repo.ListByClient(ctx, clientID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list client assignments")
	}
	return list, nil
}

func (s *service) ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.Assignment, error) {
	if leadID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead id required")
	}
	rows, err := s.repo.ListByLead(ctx, leadID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lead assignments")
	}
	return rows, nil
}

func (s *service) Dashboard(ctx context.Context, clientID uuid.UUID) ([]DashboardRow, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	rows, err := s.repo.Dashboard(ctx, clientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distribution dashboard")
	}
	return rows, nil
}

// openAssignment inserts a fresh active assignment, bumps the destination
// counter, and emits the assigned event. Callers must already hold the
// lead's active-assignment lock (or know no active row exists).
func (s *service) openAssignment(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	lead *models.Lead,
	vendor *models.Salesperson,
	actor *Actor,
	degraded bool,
) (*models.Assignment, error) {
	now := s.now()
	row := &models.Assignment{
		LeadID:   lead.ID,
		VendorID: vendor.ID,
		ClientID: lead.ClientID,
		Status:   enums.AssignmentStatusActive,
	}
	if actor != nil {
		row.AssignedBy = &actor.UserID
	}

	created, err := repo.InsertAssignment(ctx, row)
	if err != nil {
		if dbpkg.IsUniqueViolation(err, dbpkg.ConstraintActiveAssignment) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "lead already has an active assignment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert assignment")
	}
	if err := repo.AdjustCounterOnAssign(ctx, vendor.ID, lead.ClientID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump assignment counter")
	}

	var actorRef *outbox.ActorRef
	if actor != nil {
		actorRef = buildActor(*actor)
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventLeadAssigned,
		AggregateType: enums.AggregateLead,
		AggregateID:   lead.ID,
		Version:       1,
		Actor:         actorRef,
		Data: LeadAssignedEvent{
			LeadID:           lead.ID,
			AssignmentID:     created.ID,
			VendorID:         vendor.ID,
			ClientID:         lead.ClientID,
			AssignedAt:       now,
			DegradedTransfer: degraded,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return created, nil
}

// loadPair fetches the lead and salesperson, enforcing tenant scoping and
// that the salesperson is eligible to receive leads.
func (s *service) loadPair(
	ctx context.Context,
	repo Repository,
	leadID, vendorID, clientID uuid.UUID,
) (*models.Lead, *models.Salesperson, error) {
	lead, err := repo.FindLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
	}
	if lead.ClientID != clientID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "lead belongs to another client")
	}

	vendor, err := repo.FindSalesperson(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "salesperson not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load salesperson")
	}
	if vendor.ClientID != clientID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "salesperson belongs to another client")
	}
	if !vendor.Active {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "salesperson is inactive")
	}
	return lead, vendor, nil
}

func validateActor(actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.ClientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "client context missing")
	}
	return nil
}

func buildActor(actor Actor) *outbox.ActorRef {
	clientID := actor.ClientID
	return &outbox.ActorRef{
		UserID:   actor.UserID,
		ClientID: &clientID,
		Role:     actor.Role,
	}
}
