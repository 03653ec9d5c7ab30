package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead is a prospective customer record eligible for sales follow-up.
// Identity fields are owned by upstream lead-management flows; this core only
// reads them and owns the "currently assigned" relationship.
type Lead struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string     `gorm:"column:name;type:text;not null"`
	Phone           string     `gorm:"column:phone;type:text;not null"`
	Email           *string    `gorm:"column:email;type:text"`
	Company         *string    `gorm:"column:company;type:text"`
	ClientID        uuid.UUID  `gorm:"column:client_id;type:uuid;not null"`
	QualificationID *uuid.UUID `gorm:"column:qualification_id;type:uuid"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
