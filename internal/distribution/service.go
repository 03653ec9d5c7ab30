package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/osoriodev/vendelo-backend/internal/assignment"
	"github.com/osoriodev/vendelo-backend/internal/queue"
	"github.com/osoriodev/vendelo-backend/internal/selector"
	dbpkg "github.com/osoriodev/vendelo-backend/pkg/db"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	pkgerrors "github.com/osoriodev/vendelo-backend/pkg/errors"
	"github.com/osoriodev/vendelo-backend/pkg/logger"
	"github.com/osoriodev/vendelo-backend/pkg/outbox"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Outcome is the terminal state of one distribution attempt.
type Outcome string

const (
	// OutcomeAssigned means a salesperson now owns the lead.
	OutcomeAssigned Outcome = "assigned"
	// OutcomeQueued means no salesperson was eligible and the lead waits.
	OutcomeQueued Outcome = "queued"
	// OutcomeAlreadyAssigned means the lead already had an active owner.
	OutcomeAlreadyAssigned Outcome = "already_assigned"
)

// DistributeInput asks the engine to find an owner for a decided lead.
type DistributeInput struct {
	LeadID   uuid.UUID
	ClientID uuid.UUID
	Actor    *assignment.Actor
	Priority int
}

// Result reports what the engine did with the lead.
type Result struct {
	Outcome    Outcome
	Assignment *models.Assignment
	QueueEntry *models.WaitingQueueEntry
}

// DrainSummary aggregates one ProcessQueue run across tenants.
type DrainSummary struct {
	Drained   int
	PerClient map[uuid.UUID]int
}

// Service orchestrates lead distribution: selector reads, assignment writes,
// and waiting queue fallbacks, all inside one transaction per lead. It is the
// façade the HTTP layer and cron workers talk to; manual operations pass
// through to the assignment lifecycle service.
type Service interface {
	DistributeDecidedLead(ctx context.Context, input DistributeInput) (*Result, error)
	ManualAssign(ctx context.Context, input assignment.AssignInput) (*models.Assignment, error)
	ManualTransfer(ctx context.Context, input assignment.TransferInput) (*models.Assignment, error)
	ManualConclude(ctx context.Context, input assignment.ConcludeInput) error
	ProcessQueue(ctx context.Context) (*DrainSummary, error)
	DrainClientQueue(ctx context.Context, clientID uuid.UUID) (int, error)
	PendingQueue(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*queue.EntryList, int64, error)
	Dashboard(ctx context.Context, clientID uuid.UUID) ([]assignment.DashboardRow, error)
}

type service struct {
	assignments assignment.Repository
	lifecycle   assignment.Service
	entries     queue.Repository
	waitlist    queue.Service
	tx          txRunner
	outbox      outboxPublisher
	logg        *logger.Logger
	batchSize   int
	now         func() time.Time
}

// NewService builds the distribution orchestrator.
func NewService(
	assignments assignment.Repository,
	lifecycle assignment.Service,
	entries queue.Repository,
	tx txRunner,
	ob outboxPublisher,
	logg *logger.Logger,
	batchSize int,
) (Service, error) {
	if assignments == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("assignment service required")
	}
	if entries == nil {
		return nil, fmt.Errorf("queue repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	waitlist, err := queue.NewService(entries)
	if err != nil {
		return nil, err
	}
	return &service{
		assignments: assignments,
		lifecycle:   lifecycle,
		entries:     entries,
		waitlist:    waitlist,
		tx:          tx,
		outbox:      ob,
		logg:        logg,
		batchSize:   batchSize,
		now:         time.Now,
	}, nil
}

// ManualAssign hands the lead to a chosen salesperson.
func (s *service) ManualAssign(ctx context.Context, input assignment.AssignInput) (*models.Assignment, error) {
	return s.lifecycle.Assign(ctx, input)
}

// ManualTransfer moves the lead's active assignment to a chosen salesperson.
func (s *service) ManualTransfer(ctx context.Context, input assignment.TransferInput) (*models.Assignment, error) {
	return s.lifecycle.Transfer(ctx, input)
}

// ManualConclude closes the lead's active assignment.
func (s *service) ManualConclude(ctx context.Context, input assignment.ConcludeInput) error {
	return s.lifecycle.Conclude(ctx, input)
}

// Dashboard reports per-salesperson workload for one tenant.
func (s *service) Dashboard(ctx context.Context, clientID uuid.UUID) ([]assignment.DashboardRow, error) {
	return s.lifecycle.Dashboard(ctx, clientID)
}

// PendingQueue reports one tenant's waiting leads and the total backlog.
func (s *service) PendingQueue(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*queue.EntryList, int64, error) {
	list, err := s.waitlist.ListPending(ctx, clientID, params)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.waitlist.CountPending(ctx, clientID)
	if err != nil {
		return nil, 0, err
	}
	return list, count, nil
}

// DistributeDecidedLead selects the least-loaded active salesperson and
// assigns the lead, or parks the lead in the waiting queue when nobody is
// eligible. A lead that already has an active owner is reported, not failed.
func (s *service) DistributeDecidedLead(ctx context.Context, input DistributeInput) (*Result, error) {
	if input.LeadID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead id required")
	}
	if input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.assignments.WithTx(tx)

		lead, err := repo.FindLead(ctx, input.LeadID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
		}
		if lead.ClientID != input.ClientID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "lead belongs to another client")
		}

		current, err := repo.LockActiveAssignment(ctx, lead.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock active assignment")
		}
		if current != nil {
			result = &Result{Outcome: OutcomeAlreadyAssigned, Assignment: current}
			return nil
		}

		candidates, err := repo.ListEligibleCandidates(ctx, input.ClientID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible salespeople")
		}

		pick := selector.Pick(candidates)
		if pick == nil {
			entry, err := s.parkLead(ctx, tx, lead, input)
			if err != nil {
				return err
			}
			result = &Result{Outcome: OutcomeQueued, QueueEntry: entry}
			return nil
		}

		created, err := s.assignTo(ctx, tx, repo, lead, pick.VendorID, input.Actor)
		if err != nil {
			return err
		}
		result = &Result{Outcome: OutcomeAssigned, Assignment: created}
		return nil
	})
	if err != nil {
		// A concurrent distributor won the unique index race; report the
		// lead as owned rather than failing the caller.
		if dbpkg.IsUniqueViolation(err, dbpkg.ConstraintActiveAssignment) {
			return &Result{Outcome: OutcomeAlreadyAssigned}, nil
		}
		// Same race on the waiting queue: another worker parked the lead
		// first, so surface the entry it created.
		if dbpkg.IsUniqueViolation(err, dbpkg.ConstraintUnprocessedQueueEntry) {
			entry, findErr := s.entries.FindUnprocessedByLead(ctx, input.LeadID)
			if findErr == nil && entry != nil {
				return &Result{Outcome: OutcomeQueued, QueueEntry: entry}, nil
			}
		}
		return nil, err
	}

	if s.logg != nil {
		fields := map[string]any{"outcome": result.Outcome}
		logCtx := s.logg.WithLeadID(ctx, input.LeadID.String())
		logCtx = s.logg.WithFields(logCtx, fields)
		s.logg.Info(logCtx, "lead distribution completed")
	}
	return result, nil
}

// ProcessQueue drains every tenant's waiting queue. Per-tenant failures are
// logged and do not stop the remaining tenants.
func (s *service) ProcessQueue(ctx context.Context) (*DrainSummary, error) {
	clients, err := s.entries.ListClientsWithPending(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tenants with pending entries")
	}

	summary := &DrainSummary{PerClient: map[uuid.UUID]int{}}
	var errs []error
	for _, clientID := range clients {
		drained, err := s.DrainClientQueue(ctx, clientID)
		summary.Drained += drained
		if drained > 0 {
			summary.PerClient[clientID] = drained
		}
		if err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithClientID(ctx, clientID.String())
				s.logg.Error(logCtx, "queue drain failed for client", err)
			}
			errs = append(errs, fmt.Errorf("client %s: %w", clientID, err))
		}
	}
	return summary, multierr.Combine(errs...)
}

// DrainClientQueue assigns waiting leads for one tenant in batches and stops
// at the first entry that finds no eligible salesperson.
func (s *service) DrainClientQueue(ctx context.Context, clientID uuid.UUID) (int, error) {
	if clientID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}

	total := 0
	for {
		drained, stopped, err := s.drainBatch(ctx, clientID)
		total += drained
		if err != nil {
			return total, err
		}
		if stopped || drained == 0 {
			return total, nil
		}
	}
}

func (s *service) drainBatch(ctx context.Context, clientID uuid.UUID) (drained int, stopped bool, err error) {
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entryRepo := s.entries.WithTx(tx)
		assignRepo := s.assignments.WithTx(tx)

		batch, err := entryRepo.LockNextUnprocessed(ctx, clientID, s.batchSize)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock queue batch")
		}
		if len(batch) == 0 {
			stopped = true
			return nil
		}

		now := s.now()
		for _, entry := range batch {
			// A lead manually assigned while waiting just leaves the queue.
			current, err := assignRepo.LockActiveAssignment(ctx, entry.LeadID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock active assignment")
			}
			if current != nil {
				if err := entryRepo.MarkProcessed(ctx, entry.ID, now); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark stale entry processed")
				}
				continue
			}

			candidates, err := assignRepo.ListEligibleCandidates(ctx, clientID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible salespeople")
			}
			pick := selector.Pick(candidates)
			if pick == nil {
				stopped = true
				return nil
			}

			lead, err := assignRepo.FindLead(ctx, entry.LeadID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load queued lead")
			}
			if _, err := s.assignTo(ctx, tx, assignRepo, lead, pick.VendorID, nil); err != nil {
				return err
			}
			if err := entryRepo.MarkProcessed(ctx, entry.ID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark entry processed")
			}
			drained++
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return drained, stopped, nil
}

// assignTo opens the active assignment, adjusts the vendor counter, and
// emits the assigned event, all on the supplied transaction.
func (s *service) assignTo(
	ctx context.Context,
	tx *gorm.DB,
	repo assignment.Repository,
	lead *models.Lead,
	vendorID uuid.UUID,
	actor *assignment.Actor,
) (*models.Assignment, error) {
	now := s.now()
	row := &models.Assignment{
		LeadID:   lead.ID,
		VendorID: vendorID,
		ClientID: lead.ClientID,
		Status:   enums.AssignmentStatusActive,
	}
	if actor != nil {
		row.AssignedBy = &actor.UserID
	}

	created, err := repo.InsertAssignment(ctx, row)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert assignment")
	}
	if err := repo.AdjustCounterOnAssign(ctx, vendorID, lead.ClientID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump assignment counter")
	}

	var actorRef *outbox.ActorRef
	if actor != nil {
		clientID := actor.ClientID
		actorRef = &outbox.ActorRef{UserID: actor.UserID, ClientID: &clientID, Role: actor.Role}
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventLeadAssigned,
		AggregateType: enums.AggregateLead,
		AggregateID:   lead.ID,
		Version:       1,
		Actor:         actorRef,
		Data: assignment.LeadAssignedEvent{
			LeadID:       lead.ID,
			AssignmentID: created.ID,
			VendorID:     vendorID,
			ClientID:     lead.ClientID,
			AssignedAt:   now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return created, nil
}

// parkLead creates (or reuses) the pending queue entry for the lead and
// emits the queued event only when a fresh entry was created.
func (s *service) parkLead(ctx context.Context, tx *gorm.DB, lead *models.Lead, input DistributeInput) (*models.WaitingQueueEntry, error) {
	entry, created, err := s.waitlist.Enqueue(ctx, tx, queue.EnqueueInput{
		LeadID:   lead.ID,
		ClientID: lead.ClientID,
		Reason:   enums.QueueReasonNoActiveSalesperson,
		Priority: input.Priority,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return entry, nil
	}

	var actorRef *outbox.ActorRef
	if input.Actor != nil {
		clientID := input.Actor.ClientID
		actorRef = &outbox.ActorRef{UserID: input.Actor.UserID, ClientID: &clientID, Role: input.Actor.Role}
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventLeadQueued,
		AggregateType: enums.AggregateLead,
		AggregateID:   lead.ID,
		Version:       1,
		Actor:         actorRef,
		Data: assignment.LeadQueuedEvent{
			LeadID:     lead.ID,
			EntryID:    entry.ID,
			ClientID:   lead.ClientID,
			Reason:     entry.Reason,
			EnqueuedAt: s.now(),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return entry, nil
}
