package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/osoriodev/vendelo-backend/internal/selector"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	pkgerrors "github.com/osoriodev/vendelo-backend/pkg/errors"
	"github.com/osoriodev/vendelo-backend/pkg/outbox"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

type stubAssignmentRepo struct {
	lead   *models.Lead
	vendor *models.Salesperson
	active *models.Assignment

	inserted      *models.Assignment
	updatedStatus enums.AssignmentStatus
	updatedValues map[string]any
	assignBumps   []uuid.UUID
	releases      []uuid.UUID
	concludes     []uuid.UUID
	concludeWins  []bool
	notifiedID    uuid.UUID
}

func (s *stubAssignmentRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubAssignmentRepo) FindLead(ctx context.Context, leadID uuid.UUID) (*models.Lead, error) {
	if s.lead == nil || s.lead.ID != leadID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.lead, nil
}

func (s *stubAssignmentRepo) FindSalesperson(ctx context.Context, vendorID uuid.UUID) (*models.Salesperson, error) {
	if s.vendor == nil || s.vendor.ID != vendorID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.vendor, nil
}

func (s *stubAssignmentRepo) LockActiveAssignment(ctx context.Context, leadID uuid.UUID) (*models.Assignment, error) {
	if s.active == nil || s.active.LeadID != leadID {
		return nil, nil
	}
	return s.active, nil
}

func (s *stubAssignmentRepo) FindAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.Assignment, error) {
	panic("not implemented")
}

func (s *stubAssignmentRepo) InsertAssignment(ctx context.Context, row *models.Assignment) (*models.Assignment, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = time.Now()
	s.inserted = row
	return row, nil
}

func (s *stubAssignmentRepo) UpdateAssignmentStatus(ctx context.Context, assignmentID uuid.UUID, status enums.AssignmentStatus, updates map[string]any) error {
	s.updatedStatus = status
	s.updatedValues = updates
	return nil
}

func (s *stubAssignmentRepo) MarkNotified(ctx context.Context, assignmentID uuid.UUID, at time.Time) error {
	s.notifiedID = assignmentID
	return nil
}

func (s *stubAssignmentRepo) AdjustCounterOnAssign(ctx context.Context, vendorID, clientID uuid.UUID, at time.Time) error {
	s.assignBumps = append(s.assignBumps, vendorID)
	return nil
}

func (s *stubAssignmentRepo) AdjustCounterOnRelease(ctx context.Context, vendorID, clientID uuid.UUID) error {
	s.releases = append(s.releases, vendorID)
	return nil
}

func (s *stubAssignmentRepo) AdjustCounterOnConclude(ctx context.Context, vendorID, clientID uuid.UUID, won bool) error {
	s.concludes = append(s.concludes, vendorID)
	s.concludeWins = append(s.concludeWins, won)
	return nil
}

func (s *stubAssignmentRepo) ReconcileCounters(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *stubAssignmentRepo) ListEligibleCandidates(ctx context.Context, clientID uuid.UUID) ([]selector.Candidate, error) {
	panic("not implemented")
}

func (s *stubAssignmentRepo) ListByVendor(ctx context.Context, vendorID, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error) {
	return &AssignmentList{}, nil
}

func (s *stubAssignmentRepo) ListByClient(ctx context.Context, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error) {
	return &AssignmentList{}, nil
}

func (s *stubAssignmentRepo) ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.Assignment, error) {
	return nil, nil
}

func (s *stubAssignmentRepo) Dashboard(ctx context.Context, clientID uuid.UUID) ([]DashboardRow, error) {
	return nil, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func testActor(clientID uuid.UUID) Actor {
	return Actor{UserID: uuid.New(), ClientID: clientID, Role: "manager"}
}

func seededRepo() (*stubAssignmentRepo, uuid.UUID) {
	clientID := uuid.New()
	return &stubAssignmentRepo{
		lead: &models.Lead{
			ID:       uuid.New(),
			Name:     "Ana Torres",
			Phone:    "+5215550001111",
			ClientID: clientID,
		},
		vendor: &models.Salesperson{
			ID:       uuid.New(),
			Name:     "Luis Vega",
			Email:    "luis@example.com",
			ClientID: clientID,
			Active:   true,
		},
	}, clientID
}

func newTestService(t *testing.T, repo Repository, ob *stubOutbox) Service {
	t.Helper()
	svc, err := NewService(repo, stubTxRunner{}, ob)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestAssignCreatesActiveAssignment(t *testing.T) {
	repo, clientID := seededRepo()
	ob := &stubOutbox{}
	svc := newTestService(t, repo, ob)

	created, err := svc.Assign(context.Background(), AssignInput{
		LeadID:   repo.lead.ID,
		VendorID: repo.vendor.ID,
		Actor:    testActor(clientID),
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if created.Status != enums.AssignmentStatusActive {
		t.Fatalf("expected active status, got %s", created.Status)
	}
	if created.AssignedBy == nil {
		t.Fatalf("expected assigned_by actor to be recorded")
	}
	if len(repo.assignBumps) != 1 || repo.assignBumps[0] != repo.vendor.ID {
		t.Fatalf("expected one counter bump for the vendor, got %v", repo.assignBumps)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventLeadAssigned {
		t.Fatalf("expected one lead_assigned event, got %v", ob.events)
	}
}

func TestAssignRejectsWhenLeadAlreadyOwned(t *testing.T) {
	repo, clientID := seededRepo()
	repo.active = &models.Assignment{
		ID:       uuid.New(),
		LeadID:   repo.lead.ID,
		VendorID: uuid.New(),
		ClientID: clientID,
		Status:   enums.AssignmentStatusActive,
	}
	svc := newTestService(t, repo, &stubOutbox{})

	_, err := svc.Assign(context.Background(), AssignInput{
		LeadID:   repo.lead.ID,
		VendorID: repo.vendor.ID,
		Actor:    testActor(clientID),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected benign conflict, got %v", err)
	}
	if repo.inserted != nil {
		t.Fatalf("no assignment should be inserted on conflict")
	}
}

func TestAssignRejectsInactiveVendor(t *testing.T) {
	repo, clientID := seededRepo()
	repo.vendor.Active = false
	svc := newTestService(t, repo, &stubOutbox{})

	_, err := svc.Assign(context.Background(), AssignInput{
		LeadID:   repo.lead.ID,
		VendorID: repo.vendor.ID,
		Actor:    testActor(clientID),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict for inactive vendor, got %v", err)
	}
}

func TestAssignRejectsCrossClientLead(t *testing.T) {
	repo, _ := seededRepo()
	svc := newTestService(t, repo, &stubOutbox{})

	_, err := svc.Assign(context.Background(), AssignInput{
		LeadID:   repo.lead.ID,
		VendorID: repo.vendor.ID,
		Actor:    testActor(uuid.New()),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for cross-client access, got %v", err)
	}
}

func TestTransferMovesActiveAssignment(t *testing.T) {
	repo, clientID := seededRepo()
	previousVendor := uuid.New()
	repo.active = &models.Assignment{
		ID:       uuid.New(),
		LeadID:   repo.lead.ID,
		VendorID: previousVendor,
		ClientID: clientID,
		Status:   enums.AssignmentStatusActive,
	}
	ob := &stubOutbox{}
	svc := newTestService(t, repo, ob)

	reason := "vacation handover"
	created, err := svc.Transfer(context.Background(), TransferInput{
		LeadID:   repo.lead.ID,
		VendorID: repo.vendor.ID,
		Reason:   &reason,
		Actor:    testActor(clientID),
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if created.VendorID != repo.vendor.ID {
		t.Fatalf("new assignment should belong to destination vendor")
	}
	if repo.updatedStatus != enums.AssignmentStatusTransferred {
		t.Fatalf("previous assignment should be marked transferred, got %s", repo.updatedStatus)
	}
	if len(repo.releases) != 1 || repo.releases[0] != previousVendor {
		t.Fatalf("source vendor counter should be released, got %v", repo.releases)
	}
	if len(repo.assignBumps) != 1 || repo.assignBumps[0] != repo.vendor.ID {
		t.Fatalf("destination vendor counter should be bumped, got %v", repo.assignBumps)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventLeadTransferred {
		t.Fatalf("expected one lead_transferred event")
	}
	payload, ok := ob.events[0].Data.(LeadTransferredEvent)
	if !ok {
		t.Fatalf("unexpected event payload type %T", ob.events[0].Data)
	}
	if payload.FromVendorID != previousVendor || payload.ToVendorID != repo.vendor.ID {
		t.Fatalf("transfer payload carries wrong vendors: %+v", payload)
	}
}

func TestTransferWithoutActiveDegradesToAssign(t *testing.T) {
	repo, clientID := seededRepo()
	ob := &stubOutbox{}
	svc := newTestService(t, repo, ob)

	created, err := svc.Transfer(context.Background(), TransferInput{
		LeadID:   repo.lead.ID,
		VendorID: repo.vendor.ID,
		Actor:    testActor(clientID),
	})
	if err != nil {
		t.Fatalf("degraded transfer: %v", err)
	}
	if created.AssignedBy == nil {
		t.Fatalf("degraded transfer must record the acting user")
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventLeadAssigned {
		t.Fatalf("degraded transfer should emit lead_assigned")
	}
	payload := ob.events[0].Data.(LeadAssignedEvent)
	if !payload.DegradedTransfer {
		t.Fatalf("event should carry the degraded transfer marker")
	}
}

func TestTransferToCurrentOwnerIsRejected(t *testing.T) {
	repo, clientID := seededRepo()
	repo.active = &models.Assignment{
		ID:       uuid.New(),
		LeadID:   repo.lead.ID,
		VendorID: repo.vendor.ID,
		ClientID: clientID,
		Status:   enums.AssignmentStatusActive,
	}
	svc := newTestService(t, repo, &stubOutbox{})

	_, err := svc.Transfer(context.Background(), TransferInput{
		LeadID:   repo.lead.ID,
		VendorID: repo.vendor.ID,
		Actor:    testActor(clientID),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected benign conflict, got %v", err)
	}
}

func TestConcludeClosesActiveAssignment(t *testing.T) {
	repo, clientID := seededRepo()
	owner := uuid.New()
	repo.active = &models.Assignment{
		ID:       uuid.New(),
		LeadID:   repo.lead.ID,
		VendorID: owner,
		ClientID: clientID,
		Status:   enums.AssignmentStatusActive,
	}
	ob := &stubOutbox{}
	svc := newTestService(t, repo, ob)

	err := svc.Conclude(context.Background(), ConcludeInput{
		LeadID: repo.lead.ID,
		Won:    true,
		Actor:  testActor(clientID),
	})
	if err != nil {
		t.Fatalf("conclude: %v", err)
	}
	if repo.updatedStatus != enums.AssignmentStatusConcluded {
		t.Fatalf("assignment should be concluded, got %s", repo.updatedStatus)
	}
	if len(repo.concludes) != 1 || repo.concludes[0] != owner {
		t.Fatalf("concluded counter should be adjusted for owner, got %v", repo.concludes)
	}
	if len(repo.concludeWins) != 1 || !repo.concludeWins[0] {
		t.Fatalf("won outcome should reach the counter adjustment, got %v", repo.concludeWins)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventLeadConcluded {
		t.Fatalf("expected one lead_concluded event")
	}
}

func TestConcludeWithoutActiveFails(t *testing.T) {
	repo, clientID := seededRepo()
	svc := newTestService(t, repo, &stubOutbox{})

	err := svc.Conclude(context.Background(), ConcludeInput{
		LeadID: repo.lead.ID,
		Actor:  testActor(clientID),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected benign conflict, got %v", err)
	}
}

func TestMarkNotifiedDelegates(t *testing.T) {
	repo, _ := seededRepo()
	svc := newTestService(t, repo, &stubOutbox{})

	id := uuid.New()
	if err := svc.MarkNotified(context.Background(), id); err != nil {
		t.Fatalf("mark notified: %v", err)
	}
	if repo.notifiedID != id {
		t.Fatalf("expected repo to receive assignment id")
	}
}
