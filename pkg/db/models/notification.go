package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to a tenant and
// addressed to a salesperson. Outbound delivery (email/WhatsApp) lives in
// external collaborators; these rows are the durable notify record.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID  uuid.UUID              `gorm:"column:client_id;type:uuid;not null"`
	VendorID  uuid.UUID              `gorm:"column:vendor_id;type:uuid;not null"`
	Type      enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Title     string                 `gorm:"column:title;type:text;not null"`
	Message   string                 `gorm:"column:message;type:text;not null"`
	ReadAt    *time.Time             `gorm:"column:read_at;type:timestamptz"`
	CreatedAt time.Time              `gorm:"column:created_at;type:timestamptz;default:now()"`
}
