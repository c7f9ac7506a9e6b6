package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionCreateSequenceConfig  = "CREATE_SEQUENCE_CONFIG"
	ActionUpdateSequenceConfig  = "UPDATE_SEQUENCE_CONFIG"
	ActionResetSequence         = "RESET_SEQUENCE"
	ActionDisableSequenceConfig = "DISABLE_SEQUENCE_CONFIG"
	ActionDeleteSequenceConfig  = "DELETE_SEQUENCE_CONFIG"
	ActionRerenderSequences     = "RERENDER_SEQUENCES"

	ActionCreateMachine    = "CREATE_MACHINE"
	ActionOverrideSequence = "OVERRIDE_MACHINE_SEQUENCE"

	// Approval workflow actions
	ActionCreateApprovalRequest = "CREATE_APPROVAL_REQUEST"
	ActionEditApprovalRequest   = "EDIT_APPROVAL_REQUEST"
	ActionApproveRequest        = "APPROVE_REQUEST"
	ActionRejectRequest         = "REJECT_REQUEST"
	ActionCancelRequest         = "CANCEL_REQUEST"

	ActionCreateCategory    = "CREATE_CATEGORY"
	ActionCreateSubcategory = "CREATE_SUBCATEGORY"

	ActionUpdateCategoryApprovers = "UPDATE_CATEGORY_APPROVERS"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"` // Nil for automated jobs
	User       *User          `gorm:"foreignKey:UserID" json:"user"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `gorm:"not null" json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	if len(a.Details) == 0 {
		a.Details = datatypes.JSON("{}")
	}
	return nil
}
