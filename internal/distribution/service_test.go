package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/osoriodev/vendelo-backend/internal/assignment"
	"github.com/osoriodev/vendelo-backend/internal/queue"
	"github.com/osoriodev/vendelo-backend/internal/selector"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	"github.com/osoriodev/vendelo-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupEngineDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE leads (
			id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			email TEXT,
			company TEXT,
			client_id TEXT NOT NULL,
			qualification_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE salespeople (
			id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT,
			client_id TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE assignments (
			id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
			lead_id TEXT NOT NULL,
			vendor_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			assigned_by TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			notified INTEGER NOT NULL DEFAULT 0,
			notified_at DATETIME,
			transfer_reason TEXT,
			won INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_assignments_active_lead
			ON assignments (lead_id) WHERE status = 'active'`,
		`CREATE TABLE salesperson_counters (
			vendor_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			total_leads INTEGER NOT NULL DEFAULT 0,
			active_leads INTEGER NOT NULL DEFAULT 0,
			concluded_leads INTEGER NOT NULL DEFAULT 0,
			last_assigned_at DATETIME,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (vendor_id, client_id)
		)`,
		`CREATE TABLE waiting_queue_entries (
			id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
			lead_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			enqueued_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			processed INTEGER NOT NULL DEFAULT 0,
			processed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX ux_waiting_queue_unprocessed_lead
			ON waiting_queue_entries (lead_id) WHERE processed = 0`,
		`CREATE TABLE outbox_events (
			id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(2))) || '-' || lower(hex(randomblob(6)))),
			event_type TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			published_at DATETIME,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newEngine(t *testing.T, db *gorm.DB, batch int) Service {
	t.Helper()
	repo := assignment.NewRepository(db)
	runner := gormTxRunner{db: db}
	ob := outbox.NewService(outbox.NewRepository(db), nil)
	lifecycle, err := assignment.NewService(repo, runner, ob)
	require.NoError(t, err)
	svc, err := NewService(
		repo,
		lifecycle,
		queue.NewRepository(db),
		runner,
		ob,
		nil,
		batch,
	)
	require.NoError(t, err)
	return svc
}

func createLead(t *testing.T, db *gorm.DB, clientID uuid.UUID) *models.Lead {
	t.Helper()
	lead := &models.Lead{
		ID:       uuid.New(),
		Name:     "Marta Silva",
		Phone:    "+5215553332222",
		ClientID: clientID,
	}
	require.NoError(t, db.Create(lead).Error)
	return lead
}

func createSalesperson(t *testing.T, db *gorm.DB, clientID uuid.UUID) *models.Salesperson {
	t.Helper()
	sp := &models.Salesperson{
		ID:       uuid.New(),
		Name:     "Diego Parra",
		Email:    uuid.NewString() + "@example.com",
		ClientID: clientID,
		Active:   true,
	}
	require.NoError(t, db.Create(sp).Error)
	return sp
}

func countEvents(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", eventType).
		Count(&count).Error)
	return count
}

func TestDistributeAssignsLeastLoadedSalesperson(t *testing.T) {
	db := setupEngineDB(t)
	engine := newEngine(t, db, 50)
	ctx := context.Background()

	clientID := uuid.New()
	busy := createSalesperson(t, db, clientID)
	idle := createSalesperson(t, db, clientID)

	// Preload the busy salesperson with two active leads.
	repo := assignment.NewRepository(db)
	at := time.Now().Add(-time.Hour)
	require.NoError(t, repo.AdjustCounterOnAssign(ctx, busy.ID, clientID, at))
	require.NoError(t, repo.AdjustCounterOnAssign(ctx, busy.ID, clientID, at))

	lead := createLead(t, db, clientID)
	result, err := engine.DistributeDecidedLead(ctx, DistributeInput{
		LeadID:   lead.ID,
		ClientID: clientID,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, result.Outcome)
	require.NotNil(t, result.Assignment)
	require.Equal(t, idle.ID, result.Assignment.VendorID)

	var counter models.SalespersonCounter
	require.NoError(t, db.Where("vendor_id = ?", idle.ID).First(&counter).Error)
	require.Equal(t, 1, counter.ActiveLeads)
	require.EqualValues(t, 1, countEvents(t, db, enums.EventLeadAssigned))
}

func TestDistributeQueuesWhenNobodyIsEligible(t *testing.T) {
	db := setupEngineDB(t)
	engine := newEngine(t, db, 50)
	ctx := context.Background()

	clientID := uuid.New()
	lead := createLead(t, db, clientID)

	result, err := engine.DistributeDecidedLead(ctx, DistributeInput{
		LeadID:   lead.ID,
		ClientID: clientID,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)
	require.NotNil(t, result.QueueEntry)
	require.Equal(t, enums.QueueReasonNoActiveSalesperson, result.QueueEntry.Reason)

	// Re-running distribution reuses the pending entry and emits no second event.
	again, err := engine.DistributeDecidedLead(ctx, DistributeInput{
		LeadID:   lead.ID,
		ClientID: clientID,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, again.Outcome)
	require.Equal(t, result.QueueEntry.ID, again.QueueEntry.ID)

	var count int64
	require.NoError(t, db.Model(&models.WaitingQueueEntry{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
	require.EqualValues(t, 1, countEvents(t, db, enums.EventLeadQueued))
}

func TestDistributeReportsAlreadyAssignedLead(t *testing.T) {
	db := setupEngineDB(t)
	engine := newEngine(t, db, 50)
	ctx := context.Background()

	clientID := uuid.New()
	createSalesperson(t, db, clientID)
	lead := createLead(t, db, clientID)

	first, err := engine.DistributeDecidedLead(ctx, DistributeInput{LeadID: lead.ID, ClientID: clientID})
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, first.Outcome)

	second, err := engine.DistributeDecidedLead(ctx, DistributeInput{LeadID: lead.ID, ClientID: clientID})
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyAssigned, second.Outcome)
	require.NotNil(t, second.Assignment)
	require.Equal(t, first.Assignment.ID, second.Assignment.ID)
	require.EqualValues(t, 1, countEvents(t, db, enums.EventLeadAssigned))
}

// raceSeedingRepo injects a competing active row inside the transaction,
// after the lock check has already seen no owner. That reproduces a
// concurrent distributor committing first and losing us the unique index
// race on insert.
type raceSeedingRepo struct {
	assignment.Repository
	winner *models.Assignment
	tx     *gorm.DB
	seeded *bool
}

func (r *raceSeedingRepo) WithTx(tx *gorm.DB) assignment.Repository {
	return &raceSeedingRepo{
		Repository: r.Repository.WithTx(tx),
		winner:     r.winner,
		tx:         tx,
		seeded:     r.seeded,
	}
}

func (r *raceSeedingRepo) ListEligibleCandidates(ctx context.Context, clientID uuid.UUID) ([]selector.Candidate, error) {
	if r.tx != nil && !*r.seeded {
		*r.seeded = true
		if err := r.tx.Create(r.winner).Error; err != nil {
			return nil, err
		}
	}
	return r.Repository.ListEligibleCandidates(ctx, clientID)
}

func TestDistributeTreatsLostInsertRaceAsAlreadyAssigned(t *testing.T) {
	db := setupEngineDB(t)
	ctx := context.Background()

	clientID := uuid.New()
	vendor := createSalesperson(t, db, clientID)
	lead := createLead(t, db, clientID)

	seeded := false
	repo := &raceSeedingRepo{
		Repository: assignment.NewRepository(db),
		winner: &models.Assignment{
			ID:       uuid.New(),
			LeadID:   lead.ID,
			VendorID: vendor.ID,
			ClientID: clientID,
			Status:   enums.AssignmentStatusActive,
		},
		seeded: &seeded,
	}
	runner := gormTxRunner{db: db}
	ob := outbox.NewService(outbox.NewRepository(db), nil)
	lifecycle, err := assignment.NewService(repo, runner, ob)
	require.NoError(t, err)
	engine, err := NewService(repo, lifecycle, queue.NewRepository(db), runner, ob, nil, 50)
	require.NoError(t, err)

	result, err := engine.DistributeDecidedLead(ctx, DistributeInput{LeadID: lead.ID, ClientID: clientID})
	require.NoError(t, err, "losing the insert race must not surface as a storage failure")
	require.Equal(t, OutcomeAlreadyAssigned, result.Outcome)
	require.True(t, seeded, "competing row was never injected")

	// The losing transaction rolled back; no event was recorded for it.
	require.EqualValues(t, 0, countEvents(t, db, enums.EventLeadAssigned))
}

func TestDrainAssignsWaitingLeadsFairly(t *testing.T) {
	db := setupEngineDB(t)
	engine := newEngine(t, db, 2)
	ctx := context.Background()

	clientID := uuid.New()
	// Queue four leads while nobody is eligible.
	for i := 0; i < 4; i++ {
		lead := createLead(t, db, clientID)
		result, err := engine.DistributeDecidedLead(ctx, DistributeInput{LeadID: lead.ID, ClientID: clientID})
		require.NoError(t, err)
		require.Equal(t, OutcomeQueued, result.Outcome)
	}

	a := createSalesperson(t, db, clientID)
	b := createSalesperson(t, db, clientID)

	drained, err := engine.DrainClientQueue(ctx, clientID)
	require.NoError(t, err)
	require.Equal(t, 4, drained)

	var pending int64
	require.NoError(t, db.Model(&models.WaitingQueueEntry{}).
		Where("processed = ?", false).
		Count(&pending).Error)
	require.EqualValues(t, 0, pending)

	var counters []models.SalespersonCounter
	require.NoError(t, db.Where("vendor_id IN ?", []uuid.UUID{a.ID, b.ID}).Find(&counters).Error)
	require.Len(t, counters, 2)
	for _, c := range counters {
		require.Equal(t, 2, c.ActiveLeads, "drain should balance load across salespeople")
	}
}

func TestDrainStopsWhenNoCandidateRemains(t *testing.T) {
	db := setupEngineDB(t)
	engine := newEngine(t, db, 50)
	ctx := context.Background()

	clientID := uuid.New()
	lead := createLead(t, db, clientID)
	result, err := engine.DistributeDecidedLead(ctx, DistributeInput{LeadID: lead.ID, ClientID: clientID})
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)

	drained, err := engine.DrainClientQueue(ctx, clientID)
	require.NoError(t, err)
	require.Zero(t, drained)

	var pending int64
	require.NoError(t, db.Model(&models.WaitingQueueEntry{}).
		Where("processed = ?", false).
		Count(&pending).Error)
	require.EqualValues(t, 1, pending, "entry must stay queued until a candidate exists")
}

func TestDrainRetiresEntriesForManuallyAssignedLeads(t *testing.T) {
	db := setupEngineDB(t)
	engine := newEngine(t, db, 50)
	ctx := context.Background()

	clientID := uuid.New()
	lead := createLead(t, db, clientID)
	result, err := engine.DistributeDecidedLead(ctx, DistributeInput{LeadID: lead.ID, ClientID: clientID})
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)

	// The lead gets an owner through the manual path while it waits.
	vendor := createSalesperson(t, db, clientID)
	require.NoError(t, db.Create(&models.Assignment{
		ID:       uuid.New(),
		LeadID:   lead.ID,
		VendorID: vendor.ID,
		ClientID: clientID,
		Status:   enums.AssignmentStatusActive,
	}).Error)

	drained, err := engine.DrainClientQueue(ctx, clientID)
	require.NoError(t, err)
	require.Zero(t, drained)

	var entry models.WaitingQueueEntry
	require.NoError(t, db.Where("lead_id = ?", lead.ID).First(&entry).Error)
	require.True(t, entry.Processed, "stale entry should be retired, not re-assigned")

	var assignments int64
	require.NoError(t, db.Model(&models.Assignment{}).
		Where("lead_id = ?", lead.ID).
		Count(&assignments).Error)
	require.EqualValues(t, 1, assignments)
}

func TestManualAssignPassesThroughLifecycle(t *testing.T) {
	db := setupEngineDB(t)
	engine := newEngine(t, db, 50)
	ctx := context.Background()

	clientID := uuid.New()
	vendor := createSalesperson(t, db, clientID)
	lead := createLead(t, db, clientID)
	actor := assignment.Actor{UserID: uuid.New(), ClientID: clientID, Role: string(enums.MemberRoleAdmin)}

	created, err := engine.ManualAssign(ctx, assignment.AssignInput{
		LeadID:   lead.ID,
		VendorID: vendor.ID,
		Actor:    actor,
	})
	require.NoError(t, err)
	require.Equal(t, vendor.ID, created.VendorID)
	require.Equal(t, enums.AssignmentStatusActive, created.Status)

	rows, err := engine.Dashboard(ctx, clientID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].ActiveLeads)

	require.NoError(t, engine.ManualConclude(ctx, assignment.ConcludeInput{
		LeadID: lead.ID,
		Actor:  actor,
	}))
	rows, err = engine.Dashboard(ctx, clientID)
	require.NoError(t, err)
	require.Equal(t, 0, rows[0].ActiveLeads)
}

func TestProcessQueueCoversAllTenants(t *testing.T) {
	db := setupEngineDB(t)
	engine := newEngine(t, db, 50)
	ctx := context.Background()

	clientA := uuid.New()
	clientB := uuid.New()
	for _, clientID := range []uuid.UUID{clientA, clientB} {
		lead := createLead(t, db, clientID)
		result, err := engine.DistributeDecidedLead(ctx, DistributeInput{LeadID: lead.ID, ClientID: clientID})
		require.NoError(t, err)
		require.Equal(t, OutcomeQueued, result.Outcome)
	}
	createSalesperson(t, db, clientA)
	createSalesperson(t, db, clientB)

	summary, err := engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Drained)
	require.Equal(t, 1, summary.PerClient[clientA])
	require.Equal(t, 1, summary.PerClient[clientB])
}
