package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

// Repository defines persistence for the waiting queue. LockNextUnprocessed
// uses FOR UPDATE SKIP LOCKED so concurrent drain workers never double-serve
// an entry.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	InsertEntry(ctx context.Context, row *models.WaitingQueueEntry) (*models.WaitingQueueEntry, error)
	FindUnprocessedByLead(ctx context.Context, leadID uuid.UUID) (*models.WaitingQueueEntry, error)
	LockNextUnprocessed(ctx context.Context, clientID uuid.UUID, limit int) ([]models.WaitingQueueEntry, error)
	MarkProcessed(ctx context.Context, entryID uuid.UUID, at time.Time) error
	CountPending(ctx context.Context, clientID uuid.UUID) (int64, error)
	ListPending(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*EntryList, error)
	ListClientsWithPending(ctx context.Context) ([]uuid.UUID, error)
}

// EntryList is one page of waiting queue entries.
type EntryList struct {
	Items      []models.WaitingQueueEntry
	NextCursor string
}
