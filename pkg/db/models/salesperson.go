package models

import (
	"time"

	"github.com/google/uuid"
)

// Salesperson is a tenant user eligible to own leads. Lifecycle is managed
// externally; distribution only reads the active flag.
type Salesperson struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"column:name;type:text;not null"`
	Email     string    `gorm:"column:email;type:text;not null"`
	Phone     *string   `gorm:"column:phone;type:text"`
	ClientID  uuid.UUID `gorm:"column:client_id;type:uuid;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
