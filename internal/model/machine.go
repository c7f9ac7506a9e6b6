package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DateLayout = "2006-01-02"

// Machine is a dispatch record. The approval workflow patches it; it becomes
// authoritative only once IsApproved is set.
type Machine struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	SoID         *uuid.UUID  `gorm:"type:uuid;index" json:"so_id"`
	SalesOrder   *SalesOrder `gorm:"foreignKey:SoID" json:"sales_order,omitempty"`
	Location     string      `gorm:"type:varchar(255)" json:"location"`
	DispatchDate *time.Time  `gorm:"type:date" json:"dispatch_date"`

	Sequence         string     `gorm:"column:machine_sequence;type:varchar(100);index" json:"machine_sequence"`
	SequenceNumber   *int       `json:"sequence_number"`
	SequenceConfigID *uuid.UUID `gorm:"type:uuid;index" json:"sequence_config_id"`

	Images    datatypes.JSON    `gorm:"not null" json:"images"`
	Documents datatypes.JSON    `gorm:"not null" json:"documents"`
	Metadata  datatypes.JSONMap `json:"metadata"`

	IsApproved bool           `gorm:"not null;default:false;index" json:"is_approved"`
	CreatedBy  *uuid.UUID     `gorm:"type:uuid;index" json:"created_by"`
	Creator    *User          `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (m *Machine) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	if len(m.Images) == 0 {
		m.Images = datatypes.JSON("[]")
	}
	if len(m.Documents) == 0 {
		m.Documents = datatypes.JSON("[]")
	}
	if m.Metadata == nil {
		m.Metadata = datatypes.JSONMap{}
	}
	return nil
}

// CategoryScope returns the category and subcategory of the machine's sales order.
// Both are nil when the sales order is missing or uncategorised.
func (m *Machine) CategoryScope() (categoryID, subcategoryID *uuid.UUID) {
	if m.SalesOrder == nil || m.SalesOrder.CategoryID == nil {
		return nil, nil
	}
	return m.SalesOrder.CategoryID, m.SalesOrder.SubcategoryID
}

// DispatchDateString formats DispatchDate as YYYY-MM-DD, or "" when unset.
func (m *Machine) DispatchDateString() string {
	if m.DispatchDate == nil {
		return ""
	}
	return m.DispatchDate.Format(DateLayout)
}

// StringList decodes a JSON array column; malformed data yields nil.
func StringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// JSONStrings encodes values as a JSON array column.
func JSONStrings(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return datatypes.JSON(data)
}
