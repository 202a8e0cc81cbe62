package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxResourceNameLength bounds Resource.Name, counted in characters.
const MaxResourceNameLength = 200

// MaxResourceURLLength bounds Resource.URL, counted in characters.
const MaxResourceURLLength = 200

// Resource is a bookmarked link owned by the user who created it.
type Resource struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(200);not null" json:"name"`
	URL         string    `gorm:"type:varchar(200);not null" json:"url"`
	Description string    `gorm:"type:text;not null" json:"description"`
	CreatedByID uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	CreatedBy User `gorm:"foreignKey:CreatedByID;constraint:OnDelete:CASCADE" json:"-"`
}
