package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrCounterWrite is returned when an update tries to change CurrentCounter outside
// the repository's increment and reset operations.
var ErrCounterWrite = errors.New("sequence counter may only change through increment or reset")

// SequenceConfig is the template and counter used to number machines of one
// category, optionally narrowed to a subcategory.
type SequenceConfig struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"category_id"`
	Category      *Category    `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	SubcategoryID *uuid.UUID   `gorm:"type:uuid;index" json:"subcategory_id"`
	Subcategory   *Subcategory `gorm:"foreignKey:SubcategoryID" json:"subcategory,omitempty"`
	Prefix        string       `gorm:"type:varchar(10);not null" json:"prefix"`
	Template      string       `gorm:"type:varchar(255);not null" json:"template"`
	// CurrentCounter is the last number issued. Never written directly.
	CurrentCounter int  `gorm:"not null;default:0" json:"current_counter"`
	StartingNumber int  `gorm:"not null;default:1" json:"starting_number"`
	Active         bool `gorm:"not null" json:"active"`
	// ActiveScope holds ScopeKey while Active and NULL otherwise; its unique index keeps
	// a single active config per (category, subcategory).
	ActiveScope *string    `gorm:"type:varchar(80);uniqueIndex" json:"-"`
	CreatedBy   *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (c *SequenceConfig) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

func (c *SequenceConfig) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("CurrentCounter") {
		return ErrCounterWrite
	}
	return nil
}

// ScopeKey identifies the (category, subcategory) pair a config serves.
func ScopeKey(categoryID uuid.UUID, subcategoryID *uuid.UUID) string {
	if subcategoryID == nil {
		return categoryID.String() + ":*"
	}
	return categoryID.String() + ":" + subcategoryID.String()
}

// MarkActive sets Active and keeps ActiveScope consistent with it.
func (c *SequenceConfig) MarkActive(active bool) {
	c.Active = active
	if !active {
		c.ActiveScope = nil
		return
	}
	key := ScopeKey(c.CategoryID, c.SubcategoryID)
	c.ActiveScope = &key
}
