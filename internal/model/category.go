package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Category classifies sales orders and therefore the machines dispatched against them.
type Category struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	// ApproverRoles is a JSON array of role names notified about, and allowed to decide,
	// approval requests for machines in this category.
	ApproverRoles datatypes.JSON `gorm:"not null" json:"approver_roles"`
	Subcategories []Subcategory  `gorm:"foreignKey:CategoryID" json:"subcategories,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	if len(c.ApproverRoles) == 0 {
		c.ApproverRoles = datatypes.JSON("[]")
	}
	return nil
}

// Approvers decodes ApproverRoles; malformed data yields no roles.
func (c *Category) Approvers() []string {
	if c == nil || len(c.ApproverRoles) == 0 {
		return nil
	}
	var roles []string
	if err := json.Unmarshal(c.ApproverRoles, &roles); err != nil {
		return nil
	}
	return roles
}

// SetApprovers encodes roles into ApproverRoles.
func (c *Category) SetApprovers(roles []string) {
	if roles == nil {
		roles = []string{}
	}
	data, _ := json.Marshal(roles)
	c.ApproverRoles = datatypes.JSON(data)
}

// Subcategory refines a Category. A subcategory-specific sequence config overrides
// the category-wide one.
type Subcategory struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null;index" json:"category_id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Subcategory) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
