package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesOrder is the commercial order a machine is dispatched against. Its category
// decides which sequence config and which approvers apply to the machine.
type SalesOrder struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SoNumber      string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"so_number"`
	PoNumber      string          `gorm:"type:varchar(50);index" json:"po_number"`
	CustomerName  string          `gorm:"type:varchar(255)" json:"customer_name"`
	CategoryID    *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Category      *Category       `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	SubcategoryID *uuid.UUID      `gorm:"type:uuid;index" json:"subcategory_id"`
	Subcategory   *Subcategory    `gorm:"foreignKey:SubcategoryID" json:"subcategory,omitempty"`
	OrderValue    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"order_value"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (s *SalesOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
