package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a waiting queue repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertEntry(ctx context.Context, row *models.WaitingQueueEntry) (*models.WaitingQueueEntry, error) {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *repository) FindUnprocessedByLead(ctx context.Context, leadID uuid.UUID) (*models.WaitingQueueEntry, error) {
	var row models.WaitingQueueEntry
	err := r.db.WithContext(ctx).
		Where("lead_id = ? AND processed = ?", leadID, false).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LockNextUnprocessed claims up to limit pending entries in drain order:
// higher priority first, then oldest enqueue time.
func (r *repository) LockNextUnprocessed(ctx context.Context, clientID uuid.UUID, limit int) ([]models.WaitingQueueEntry, error) {
	var rows []models.WaitingQueueEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("client_id = ? AND processed = ?", clientID, false).
		Order("priority DESC, enqueued_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkProcessed(ctx context.Context, entryID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.WaitingQueueEntry{}).
		Where("id = ? AND processed = ?", entryID, false).
		Updates(map[string]any{
			"processed":    true,
			"processed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) CountPending(ctx context.Context, clientID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WaitingQueueEntry{}).
		Where("client_id = ? AND processed = ?", clientID, false).
		Count(&count).Error
	return count, err
}

func (r *repository) ListPending(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*EntryList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.WaitingQueueEntry{}).
		Where("client_id = ? AND processed = ?", clientID, false)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(enqueued_at > ?) OR (enqueued_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.WaitingQueueEntry
	err = query.
		Order("enqueued_at ASC, id ASC").
		Limit(limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	list := &EntryList{Items: rows}
	if len(rows) > limit {
		last := rows[limit-1]
		list.Items = rows[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.EnqueuedAt,
			ID:        last.ID,
		})
	}
	return list, nil
}

func (r *repository) ListClientsWithPending(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.WaitingQueueEntry{}).
		Distinct("client_id").
		Where("processed = ?", false).
		Pluck("client_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
