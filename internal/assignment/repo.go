package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/osoriodev/vendelo-backend/internal/selector"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an assignment repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindLead(ctx context.Context, leadID uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).
		Where("id = ?", leadID).
		First(&lead).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *repository) FindSalesperson(ctx context.Context, vendorID uuid.UUID) (*models.Salesperson, error) {
	var sp models.Salesperson
	err := r.db.WithContext(ctx).
		Where("id = ?", vendorID).
		First(&sp).Error
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

func (r *repository) LockActiveAssignment(ctx context.Context, leadID uuid.UUID) (*models.Assignment, error) {
	var row models.Assignment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("lead_id = ? AND status = ?", leadID, enums.AssignmentStatusActive).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.Assignment, error) {
	var row models.Assignment
	err := r.db.WithContext(ctx).
		Where("id = ?", assignmentID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) InsertAssignment(ctx context.Context, row *models.Assignment) (*models.Assignment, error) {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *repository) UpdateAssignmentStatus(ctx context.Context, assignmentID uuid.UUID, status enums.AssignmentStatus, updates map[string]any) error {
	values := map[string]any{"status": status}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ?", assignmentID).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) MarkNotified(ctx context.Context, assignmentID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND notified = ?", assignmentID, false).
		Updates(map[string]any{
			"notified":    true,
			"notified_at": at,
		})
	return res.Error
}

func (r *repository) AdjustCounterOnAssign(ctx context.Context, vendorID, clientID uuid.UUID, at time.Time) error {
	row := models.SalespersonCounter{
		VendorID:       vendorID,
		ClientID:       clientID,
		TotalLeads:     1,
		ActiveLeads:    1,
		LastAssignedAt: &at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vendor_id"}, {Name: "client_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total_leads":      gorm.Expr("salesperson_counters.total_leads + 1"),
				"active_leads":     gorm.Expr("salesperson_counters.active_leads + 1"),
				"last_assigned_at": at,
				"updated_at":       at,
			}),
		}).
		Create(&row).Error
}

func (r *repository) AdjustCounterOnRelease(ctx context.Context, vendorID, clientID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.SalespersonCounter{}).
		Where("vendor_id = ? AND client_id = ? AND active_leads > 0", vendorID, clientID).
		Update("active_leads", gorm.Expr("active_leads - 1")).Error
}

func (r *repository) AdjustCounterOnConclude(ctx context.Context, vendorID, clientID uuid.UUID, won bool) error {
	updates := map[string]any{
		"active_leads": gorm.Expr("active_leads - 1"),
	}
	if won {
		updates["concluded_leads"] = gorm.Expr("concluded_leads + 1")
	}
	return r.db.WithContext(ctx).
		Model(&models.SalespersonCounter{}).
		Where("vendor_id = ? AND client_id = ? AND active_leads > 0", vendorID, clientID).
		Updates(updates).Error
}

// ReconcileCounters recomputes every counter row from the assignments table.
// Correlated subqueries keep the statement portable between Postgres and the
// sqlite test harness.
func (r *repository) ReconcileCounters(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE salesperson_counters SET
			total_leads = (
				SELECT COUNT(*) FROM assignments a
				WHERE a.vendor_id = salesperson_counters.vendor_id
				  AND a.client_id = salesperson_counters.client_id
			),
			active_leads = (
				SELECT COUNT(*) FROM assignments a
				WHERE a.vendor_id = salesperson_counters.vendor_id
				  AND a.client_id = salesperson_counters.client_id
				  AND a.status = 'active'
			),
			concluded_leads = (
				SELECT COUNT(*) FROM assignments a
				WHERE a.vendor_id = salesperson_counters.vendor_id
				  AND a.client_id = salesperson_counters.client_id
				  AND a.status = 'concluded'
				  AND a.won = TRUE
			),
			updated_at = CURRENT_TIMESTAMP`)
	return res.RowsAffected, res.Error
}

// ListEligibleCandidates reads the tenant's load snapshot. FOR UPDATE OF s
// serializes concurrent picks per tenant: the second transaction blocks on
// the salespeople rows until the first commits its counter bump, so two
// distributors never select from the same stale snapshot. Locking the
// salespeople side (not the counters) also covers vendors that have no
// counter row yet. The sqlite test dialect drops the locking clause.
func (r *repository) ListEligibleCandidates(ctx context.Context, clientID uuid.UUID) ([]selector.Candidate, error) {
	var candidates []selector.Candidate
	err := r.db.WithContext(ctx).
		Table("salespeople AS s").
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "s"}}).
		Select("s.id AS vendor_id, COALESCE(c.active_leads, 0) AS active_leads, c.last_assigned_at").
		Joins("LEFT JOIN salesperson_counters c ON c.vendor_id = s.id AND c.client_id = s.client_id").
		Where("s.client_id = ? AND s.active = ?", clientID, true).
		Scan(&candidates).Error
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("vendor_id = ? AND client_id = ?", vendorID, clientID)

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	return listAssignmentPage(query, params)
}

func (r *repository) ListByClient(ctx context.Context, clientID uuid.UUID, params pagination.Params, filters ListFilters) (*AssignmentList, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("client_id = ?", clientID)

	if filters.VendorID != nil {
		query = query.Where("vendor_id = ?", *filters.VendorID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	return listAssignmentPage(query, params)
}

// listAssignmentPage applies keyset pagination on (created_at, id) and
// returns one page plus the cursor for the next, fetching limit+1 rows to
// detect whether more remain.
func listAssignmentPage(query *gorm.DB, params pagination.Params) (*AssignmentList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Assignment
	err = query.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	list := &AssignmentList{Items: rows}
	if len(rows) > limit {
		last := rows[limit-1]
		list.Items = rows[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return list, nil
}

func (r *repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Dashboard(ctx context.Context, clientID uuid.UUID) ([]DashboardRow, error) {
	var rows []DashboardRow
	err := r.db.WithContext(ctx).
		Table("salespeople AS s").
		Select(`s.id AS vendor_id, s.name, s.active,
			COALESCE(c.total_leads, 0) AS total_leads,
			COALESCE(c.active_leads, 0) AS active_leads,
			COALESCE(c.concluded_leads, 0) AS concluded_leads,
			c.last_assigned_at`).
		Joins("LEFT JOIN salesperson_counters c ON c.vendor_id = s.id AND c.client_id = s.client_id").
		Where("s.client_id = ?", clientID).
		Order("active_leads DESC, last_assigned_at ASC NULLS FIRST, s.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
