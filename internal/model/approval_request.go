package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Approval request types and statuses. The workflow rules for them live in the approval package.
const (
	ApprovalTypeCreation = "CREATION"
	ApprovalTypeEdit     = "EDIT"
	ApprovalTypeDeletion = "DELETION"

	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// ApprovalRequest is a proposed change to a machine awaiting a role-scoped decision.
type ApprovalRequest struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MachineID    uuid.UUID `gorm:"type:uuid;not null;index" json:"machine_id"`
	Machine      *Machine  `gorm:"foreignKey:MachineID" json:"machine,omitempty"`
	ApprovalType string    `gorm:"type:varchar(20);not null;index" json:"approval_type"`
	Status       string    `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	// PendingMachineID mirrors MachineID while the request is PENDING and is cleared on
	// decision. Its unique index allows one pending request per machine.
	PendingMachineID *uuid.UUID         `gorm:"type:uuid;uniqueIndex" json:"-"`
	RequestedBy      uuid.UUID          `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester        *User              `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	Approvers        []ApprovalApprover `gorm:"foreignKey:ApprovalRequestID;constraint:OnDelete:CASCADE" json:"approvers,omitempty"`
	RequestNotes     string             `gorm:"type:text" json:"request_notes"`
	ProposedChanges  datatypes.JSON     `gorm:"not null" json:"proposed_changes"`

	DecidedBy        *uuid.UUID      `gorm:"type:uuid;index" json:"decided_by"`
	Decider          *User           `gorm:"foreignKey:DecidedBy" json:"decider,omitempty"`
	DecidedAt        *time.Time      `json:"decided_at"`
	ApproverNotes    string          `gorm:"type:text" json:"approver_notes"`
	RejectionReason  string          `gorm:"type:text" json:"rejection_reason"`
	SuggestedChanges *datatypes.JSON `json:"suggested_changes"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *ApprovalRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	if len(r.ProposedChanges) == 0 {
		r.ProposedChanges = datatypes.JSON("{}")
	}
	for i := range r.Approvers {
		r.Approvers[i].ApprovalRequestID = r.ID
	}
	return nil
}

// ApproverRoles lists the role names allowed to decide the request.
func (r *ApprovalRequest) ApproverRoles() []string {
	roles := make([]string, 0, len(r.Approvers))
	for _, a := range r.Approvers {
		roles = append(roles, a.Role)
	}
	return roles
}

// ApprovalApprover is one role in a request's approver set.
type ApprovalApprover struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	ApprovalRequestID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_approval_approver_role" json:"-"`
	Role              string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_approval_approver_role;index" json:"role"`
}

func (a *ApprovalApprover) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
