package repository

import (
	"context"
	"strings"
	"time"

	"dispatchconsole/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApprovalFilter narrows an approval listing. Zero values are ignored.
type ApprovalFilter struct {
	ApprovalType  string
	Status        string
	RequestedBy   *uuid.UUID
	CreatedBy     *uuid.UUID
	DateFrom      *time.Time
	DateTo        *time.Time // inclusive, whole day
	SoNumber      string
	PoNumber      string
	Sequence      string
	CategoryID    *uuid.UUID
	MetadataKey   string
	MetadataValue string
	Search        string
	Offset        int
	Limit         int
}

// Visibility scopes a listing to what a viewer may see: requests they raised plus
// requests whose approver set contains one of their roles. All lifts the scope.
type Visibility struct {
	All    bool
	UserID uuid.UUID
	Roles  []string
}

// Decision is the terminal state written onto a pending request.
type Decision struct {
	Status           string
	DecidedBy        uuid.UUID
	DecidedAt        time.Time
	ApproverNotes    string
	RejectionReason  string
	SuggestedChanges *datatypes.JSON
}

// PendingPatch is an edit to a request that is still PENDING. Nil fields are kept.
type PendingPatch struct {
	ApprovalType    *string
	ProposedChanges datatypes.JSON
	RequestNotes    *string
}

type ApprovalRepository interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindPendingByMachine(ctx context.Context, machineID uuid.UUID) (*model.ApprovalRequest, error)
	// MarkDecided moves a PENDING request to a terminal status. It reports false when the
	// request was no longer pending.
	MarkDecided(ctx context.Context, id uuid.UUID, d Decision) (bool, error)
	// UpdatePending applies patch to a request that is still PENDING. It reports false when
	// the request was decided in the meantime.
	UpdatePending(ctx context.Context, id uuid.UUID, patch PendingPatch) (bool, error)
	ReplaceApprovers(ctx context.Context, id uuid.UUID, roles []string) error
	List(ctx context.Context, filter ApprovalFilter, vis Visibility) ([]model.ApprovalRequest, int64, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, req *model.ApprovalRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).Preload("Approvers").First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func withApprovalRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Machine", func(q *gorm.DB) *gorm.DB { return q.Unscoped() }).
		Preload("Machine.SalesOrder").
		Preload("Requester").
		Preload("Decider").
		Preload("Approvers")
}

func (r *approvalRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := withApprovalRelations(GetDB(ctx, r.db)).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) FindPendingByMachine(ctx context.Context, machineID uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Preload("Approvers").
		Where("machine_id = ? AND status = ?", machineID, model.ApprovalPending).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) MarkDecided(ctx context.Context, id uuid.UUID, d Decision) (bool, error) {
	updates := map[string]interface{}{
		"status":             d.Status,
		"pending_machine_id": nil,
		"decided_by":         d.DecidedBy,
		"decided_at":         d.DecidedAt,
		"approver_notes":     d.ApproverNotes,
		"rejection_reason":   d.RejectionReason,
		"updated_at":         time.Now(),
	}
	if d.SuggestedChanges != nil {
		updates["suggested_changes"] = *d.SuggestedChanges
	}
	res := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, model.ApprovalPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *approvalRepository) UpdatePending(ctx context.Context, id uuid.UUID, patch PendingPatch) (bool, error) {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if patch.ApprovalType != nil {
		updates["approval_type"] = *patch.ApprovalType
	}
	if patch.ProposedChanges != nil {
		updates["proposed_changes"] = patch.ProposedChanges
	}
	if patch.RequestNotes != nil {
		updates["request_notes"] = *patch.RequestNotes
	}
	res := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, model.ApprovalPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *approvalRepository) ReplaceApprovers(ctx context.Context, id uuid.UUID, roles []string) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("approval_request_id = ?", id).Delete(&model.ApprovalApprover{}).Error; err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}
	rows := make([]model.ApprovalApprover, 0, len(roles))
	for _, role := range roles {
		rows = append(rows, model.ApprovalApprover{ApprovalRequestID: id, Role: role})
	}
	return db.Create(&rows).Error
}

func (r *approvalRepository) List(ctx context.Context, filter ApprovalFilter, vis Visibility) ([]model.ApprovalRequest, int64, error) {
	var requests []model.ApprovalRequest
	var total int64

	scoped := func(q *gorm.DB) *gorm.DB {
		q = q.
			Joins("LEFT JOIN machines ON machines.id = approval_requests.machine_id").
			Joins("LEFT JOIN sales_orders ON sales_orders.id = machines.so_id")

		if !vis.All {
			if len(vis.Roles) > 0 {
				q = q.Where("approval_requests.requested_by = ? OR approval_requests.id IN (?)",
					vis.UserID,
					GetDB(ctx, r.db).Model(&model.ApprovalApprover{}).
						Select("approval_request_id").
						Where("role IN ?", vis.Roles))
			} else {
				q = q.Where("approval_requests.requested_by = ?", vis.UserID)
			}
		}

		if filter.ApprovalType != "" {
			q = q.Where("approval_requests.approval_type = ?", filter.ApprovalType)
		}
		if filter.Status != "" {
			q = q.Where("approval_requests.status = ?", filter.Status)
		}
		if filter.RequestedBy != nil {
			q = q.Where("approval_requests.requested_by = ?", *filter.RequestedBy)
		}
		if filter.CreatedBy != nil {
			q = q.Where("machines.created_by = ?", *filter.CreatedBy)
		}
		if filter.DateFrom != nil {
			q = q.Where("approval_requests.created_at >= ?", *filter.DateFrom)
		}
		if filter.DateTo != nil {
			q = q.Where("approval_requests.created_at < ?", filter.DateTo.AddDate(0, 0, 1))
		}
		if filter.SoNumber != "" {
			q = q.Where("sales_orders.so_number = ?", filter.SoNumber)
		}
		if filter.PoNumber != "" {
			q = q.Where("sales_orders.po_number = ?", filter.PoNumber)
		}
		if filter.Sequence != "" {
			q = q.Where("LOWER(machines.machine_sequence) LIKE ?", "%"+strings.ToLower(filter.Sequence)+"%")
		}
		if filter.CategoryID != nil {
			q = q.Where("sales_orders.category_id = ?", *filter.CategoryID)
		}
		if filter.MetadataKey != "" {
			q = q.Where(datatypes.JSONQuery("machines.metadata").Equals(filter.MetadataValue, filter.MetadataKey))
		}
		if filter.Search != "" {
			like := "%" + strings.ToLower(filter.Search) + "%"
			q = q.Where(
				"LOWER(machines.machine_sequence) LIKE ? OR LOWER(machines.location) LIKE ? OR LOWER(sales_orders.so_number) LIKE ? OR LOWER(sales_orders.po_number) LIKE ? OR LOWER(approval_requests.request_notes) LIKE ?",
				like, like, like, like, like)
		}
		return q
	}

	db := GetDB(ctx, r.db)
	if err := scoped(db.Model(&model.ApprovalRequest{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := scoped(withApprovalRelations(db)).
		Select("approval_requests.*").
		Order("approval_requests.created_at DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}
