package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/osoriodev/vendelo-backend/pkg/db"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	pkgerrors "github.com/osoriodev/vendelo-backend/pkg/errors"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

// EnqueueInput parks a lead in the waiting queue.
type EnqueueInput struct {
	LeadID   uuid.UUID
	ClientID uuid.UUID
	Reason   enums.QueueReason
	Priority int
}

// Service exposes queue reads and the idempotent enqueue operation.
type Service interface {
	// Enqueue inserts a pending entry for the lead. When the lead already
	// waits in the queue the existing entry is returned and created is false.
	Enqueue(ctx context.Context, tx *gorm.DB, input EnqueueInput) (entry *models.WaitingQueueEntry, created bool, err error)
	ListPending(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*EntryList, error)
	CountPending(ctx context.Context, clientID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
}

// NewService builds a waiting queue service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("queue repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Enqueue(ctx context.Context, tx *gorm.DB, input EnqueueInput) (*models.WaitingQueueEntry, bool, error) {
	if input.LeadID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "lead id required")
	}
	if input.ClientID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if !input.Reason.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid queue reason")
	}

	repo := s.repo.WithTx(tx)

	existing, err := repo.FindUnprocessedByLead(ctx, input.LeadID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing queue entry")
	}
	if existing != nil {
		return existing, false, nil
	}

	row := &models.WaitingQueueEntry{
		LeadID:   input.LeadID,
		ClientID: input.ClientID,
		Reason:   input.Reason,
		Priority: input.Priority,
	}
	created, err := repo.InsertEntry(ctx, row)
	if err == nil {
		return created, true, nil
	}
	if !dbpkg.IsUniqueViolation(err, dbpkg.ConstraintUnprocessedQueueEntry) &&
		!dbpkg.IsUniqueViolation(err, "") {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert queue entry")
	}

	// Lost the insert race; the winner's entry is the canonical one.
	existing, err = s.repo.FindUnprocessedByLead(ctx, input.LeadID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing queue entry")
	}
	if existing == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "queue entry raced to processed state")
	}
	return existing, false, nil
}

func (s *service) ListPending(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*EntryList, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	list, err := s.repo.ListPending(ctx, clientID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending queue entries")
	}
	return list, nil
}

func (s *service) CountPending(ctx context.Context, clientID uuid.UUID) (int64, error) {
	if clientID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	count, err := s.repo.CountPending(ctx, clientID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending queue entries")
	}
	return count, nil
}
