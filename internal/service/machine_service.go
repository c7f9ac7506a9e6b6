package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/approval"
	"dispatchconsole/internal/logger"
	"dispatchconsole/internal/metrics"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/repository"
	"dispatchconsole/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateMachineRequest struct {
	SoID          *string                `json:"so_id"`
	Location      string                 `json:"location" binding:"required"`
	DispatchDate  string                 `json:"dispatch_date"`
	Sequence      string                 `json:"machine_sequence"`
	AutoSequence  bool                   `json:"auto_sequence"`
	Images        []string               `json:"images"`
	Documents     []string               `json:"documents"`
	Metadata      map[string]interface{} `json:"metadata"`
	ApproverRoles []string               `json:"approver_roles"`
	RequestNotes  string                 `json:"request_notes"`
}

type RequestEditDTO struct {
	ProposedChanges json.RawMessage `json:"proposed_changes" binding:"required" swaggertype:"object"`
	ApproverRoles   []string        `json:"approver_roles"`
	RequestNotes    string          `json:"request_notes"`
}

type RequestDeletionDTO struct {
	Reason        string   `json:"reason"`
	ApproverRoles []string `json:"approver_roles"`
	RequestNotes  string   `json:"request_notes"`
}

type OverrideSequenceRequest struct {
	Sequence     string `json:"machine_sequence" binding:"required"`
	RequestNotes string `json:"request_notes"`
}

// MachineListFilter carries the listing query parameters as received.
type MachineListFilter struct {
	Search     string
	IsApproved string
	Mine       bool
	Page       int
	Limit      int
}

type MachineResponse struct {
	ID               string                 `json:"id"`
	SoID             *string                `json:"so_id"`
	SoNumber         string                 `json:"so_number,omitempty"`
	CategoryID       *string                `json:"category_id"`
	CategoryName     string                 `json:"category_name,omitempty"`
	SubcategoryID    *string                `json:"subcategory_id"`
	SubcategoryName  string                 `json:"subcategory_name,omitempty"`
	Location         string                 `json:"location"`
	DispatchDate     string                 `json:"dispatch_date"`
	Sequence         string                 `json:"machine_sequence"`
	SequenceNumber   *int                   `json:"sequence_number"`
	SequenceConfigID *string                `json:"sequence_config_id"`
	Images           []string               `json:"images"`
	Documents        []string               `json:"documents"`
	Metadata         map[string]interface{} `json:"metadata"`
	IsApproved       bool                   `json:"is_approved"`
	CreatedBy        *string                `json:"created_by"`
	CreatorName      string                 `json:"creator_name,omitempty"`
	CreatedAt        string                 `json:"created_at"`
	UpdatedAt        string                 `json:"updated_at"`
}

// MachineResult is a machine, the request its operation opened, and any warnings.
type MachineResult struct {
	Machine  MachineResponse          `json:"machine"`
	Request  *ApprovalRequestResponse `json:"request,omitempty"`
	Warnings []string                 `json:"warnings,omitempty"`
}

// --- Interface ---

type MachineService interface {
	CreateMachine(ctx context.Context, viewer Viewer, req CreateMachineRequest) (*MachineResult, error)
	RequestEdit(ctx context.Context, viewer Viewer, id string, req RequestEditDTO) (*MachineResult, error)
	RequestDeletion(ctx context.Context, viewer Viewer, id string, req RequestDeletionDTO) (*MachineResult, error)
	// OverrideSequence sets a sequence outside the generation path and sends the
	// machine back through review.
	OverrideSequence(ctx context.Context, viewer Viewer, id string, req OverrideSequenceRequest) (*MachineResult, error)
	GetMachine(ctx context.Context, id string) (*MachineResponse, error)
	ListMachines(ctx context.Context, viewer Viewer, filter MachineListFilter) ([]MachineResponse, int64, error)
}

// --- Implementation ---

type machineService struct {
	machineRepo    repository.MachineRepository
	salesOrderRepo repository.SalesOrderRepository
	approvalRepo   repository.ApprovalRepository
	auditRepo      repository.AuditRepository
	approvals      ApprovalService
	sequences      SequenceService
	txManager      repository.TransactionManager
	settings       ApprovalSettings
}

func NewMachineService(
	machineRepo repository.MachineRepository,
	salesOrderRepo repository.SalesOrderRepository,
	approvalRepo repository.ApprovalRepository,
	auditRepo repository.AuditRepository,
	approvals ApprovalService,
	sequences SequenceService,
	txManager repository.TransactionManager,
	settings ApprovalSettings,
) MachineService {
	return &machineService{
		machineRepo:    machineRepo,
		salesOrderRepo: salesOrderRepo,
		approvalRepo:   approvalRepo,
		auditRepo:      auditRepo,
		approvals:      approvals,
		sequences:      sequences,
		txManager:      txManager,
		settings:       settings,
	}
}

// sequenceWarning checks seq against the machine's scope and describes why it does not
// validate, or returns "" when it does.
func (s *machineService) sequenceWarning(ctx context.Context, m *model.Machine, seq string) (string, error) {
	categoryID, subcategoryID := m.CategoryScope()
	if categoryID == nil {
		return "machine has no category; sequence was not validated", nil
	}
	check, err := s.sequences.Check(ctx, Scope{CategoryID: *categoryID, SubcategoryID: subcategoryID}, seq)
	if apperror.Is(err, apperror.KindNoSequenceConfig) {
		return "no sequence config for the machine's category; sequence was not validated", nil
	}
	if err != nil {
		return "", err
	}
	if !check.Valid {
		return fmt.Sprintf("sequence %q does not match the category template", seq), nil
	}
	return "", nil
}

func (s *machineService) CreateMachine(ctx context.Context, viewer Viewer, req CreateMachineRequest) (*MachineResult, error) {
	soID, err := parseOptionalID(req.SoID, "so_id")
	if err != nil {
		return nil, err
	}
	req.Sequence = strings.TrimSpace(req.Sequence)
	if req.AutoSequence && req.Sequence != "" {
		return nil, apperror.Validation("machine_sequence and auto_sequence are mutually exclusive")
	}

	changes := approval.CreationChanges{
		DispatchDate: strings.TrimSpace(req.DispatchDate),
		Sequence:     req.Sequence,
		AutoSequence: req.AutoSequence,
	}
	if err := changes.Validate(); err != nil {
		return nil, err
	}

	var warnings []string
	var machineID, requestID uuid.UUID
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		creator := viewer.UserID
		m := &model.Machine{
			SoID:      soID,
			Location:  strings.TrimSpace(req.Location),
			Images:    model.JSONStrings(req.Images),
			Documents: model.JSONStrings(req.Documents),
			Metadata:  req.Metadata,
			CreatedBy: &creator,
		}
		if soID != nil {
			so, err := s.salesOrderRepo.FindByID(txCtx, *soID)
			if err != nil {
				return notFoundOr(err, "sales order")
			}
			m.SalesOrder = so
		}

		categoryID, subcategoryID := m.CategoryScope()
		if changes.AutoSequence {
			if categoryID == nil {
				warnings = append(warnings, "machine has no category; no sequence will be generated")
				changes.AutoSequence = false
			} else if _, _, err := s.sequences.ResolveConfig(txCtx, Scope{CategoryID: *categoryID, SubcategoryID: subcategoryID}); err != nil {
				if !apperror.Is(err, apperror.KindNoSequenceConfig) {
					return err
				}
				warnings = append(warnings, "no sequence config for the machine's category; no sequence will be generated")
				changes.AutoSequence = false
			}
		}
		if changes.Sequence != "" {
			w, err := s.sequenceWarning(txCtx, m, changes.Sequence)
			if err != nil {
				return err
			}
			if w != "" {
				warnings = append(warnings, w)
			}
		}

		so := m.SalesOrder
		m.SalesOrder = nil
		if err := s.machineRepo.Create(txCtx, m); err != nil {
			return fmt.Errorf("failed to create machine: %w", err)
		}
		m.SalesOrder = so
		machineID = m.ID

		if err := writeAudit(txCtx, s.auditRepo, &creator, model.ActionCreateMachine, m.ID.String(), m.Location, map[string]interface{}{
			"so_id":         uuidPtrString(soID),
			"auto_sequence": changes.AutoSequence,
			"sequence":      changes.Sequence,
		}); err != nil {
			return err
		}

		created, err := s.approvals.Open(txCtx, NewRequest{
			Machine:       m,
			Changes:       changes,
			RequestedBy:   creator,
			ApproverRoles: req.ApproverRoles,
			Notes:         req.RequestNotes,
		})
		if err != nil {
			return err
		}
		requestID = created.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, w := range warnings {
		logger.Warn("machine created with warning", zap.String("machine_id", machineID.String()), zap.String("warning", w))
	}
	return s.result(ctx, machineID, &requestID, warnings)
}

// openChange locks the machine and opens a request for changes on the viewer's behalf.
func (s *machineService) openChange(ctx context.Context, viewer Viewer, id string, changes approval.Changes, roles []string, notes string) (*MachineResult, error) {
	machineID, err := parseID(id, "machine id")
	if err != nil {
		return nil, err
	}

	var requestID uuid.UUID
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		m, err := s.machineRepo.FindByIDForUpdate(txCtx, machineID)
		if err != nil {
			return notFoundOr(err, "machine")
		}
		created, err := s.approvals.Open(txCtx, NewRequest{
			Machine:       m,
			Changes:       changes,
			RequestedBy:   viewer.UserID,
			ApproverRoles: roles,
			Notes:         notes,
		})
		if err != nil {
			return err
		}
		requestID = created.ID
		return nil
	})
	if err != nil {
		return nil, duplicateOr(ctx, s.approvalRepo, machineID, err)
	}
	return s.result(ctx, machineID, &requestID, nil)
}

func (s *machineService) RequestEdit(ctx context.Context, viewer Viewer, id string, req RequestEditDTO) (*MachineResult, error) {
	changes, err := approval.Decode(approval.TypeEdit, req.ProposedChanges)
	if err != nil {
		return nil, err
	}
	return s.openChange(ctx, viewer, id, changes, req.ApproverRoles, req.RequestNotes)
}

func (s *machineService) RequestDeletion(ctx context.Context, viewer Viewer, id string, req RequestDeletionDTO) (*MachineResult, error) {
	changes := approval.DeletionChanges{Reason: strings.TrimSpace(req.Reason)}
	return s.openChange(ctx, viewer, id, changes, req.ApproverRoles, req.RequestNotes)
}

func (s *machineService) OverrideSequence(ctx context.Context, viewer Viewer, id string, req OverrideSequenceRequest) (*MachineResult, error) {
	machineID, err := parseID(id, "machine id")
	if err != nil {
		return nil, err
	}
	seq := strings.TrimSpace(req.Sequence)
	if seq == "" {
		return nil, apperror.Validation("machine_sequence is required")
	}

	var warnings []string
	var requestID *uuid.UUID
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		m, err := s.machineRepo.FindByIDForUpdate(txCtx, machineID)
		if err != nil {
			return notFoundOr(err, "machine")
		}
		isAdmin := s.settings.AdminRole != "" && viewer.HasRole(s.settings.AdminRole)
		if !isAdmin && (m.CreatedBy == nil || *m.CreatedBy != viewer.UserID) {
			return apperror.NotAuthorized("only the machine's creator or an administrator can override its sequence")
		}
		if m.Sequence == seq {
			return apperror.Validation("machine already carries this sequence")
		}

		pending, err := s.approvalRepo.FindPendingByMachine(txCtx, m.ID)
		switch {
		case err == nil:
			if m.IsApproved || pending.ApprovalType == string(approval.TypeDeletion) {
				return apperror.DuplicatePendingRequest(m.ID.String(), pending.ID.String())
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			pending = nil
		default:
			return fmt.Errorf("failed to check pending requests: %w", err)
		}

		w, err := s.sequenceWarning(txCtx, m, seq)
		if err != nil {
			return err
		}
		if w != "" {
			warnings = append(warnings, w)
		}

		previous, wasApproved := m.Sequence, m.IsApproved
		if err := s.machineRepo.SetSequence(txCtx, m.ID, seq, nil, nil); err != nil {
			return fmt.Errorf("failed to set machine sequence: %w", err)
		}
		m.Sequence, m.SequenceNumber, m.SequenceConfigID = seq, nil, nil

		if wasApproved {
			if err := s.machineRepo.SetApproved(txCtx, m.ID, false); err != nil {
				return fmt.Errorf("failed to reopen machine for review: %w", err)
			}
			m.IsApproved = false
		}

		if pending == nil {
			created, err := s.approvals.Open(txCtx, NewRequest{
				Machine:     m,
				Changes:     approval.EditChanges{Sequence: &seq},
				RequestedBy: viewer.UserID,
				Notes:       req.RequestNotes,
				Override:    true,
			})
			if err != nil {
				return err
			}
			requestID = &created.ID
		} else {
			if err := s.approvals.MergeSequence(txCtx, pending, seq, viewer.UserID); err != nil {
				return err
			}
			requestID = &pending.ID
		}

		repository.AfterCommit(txCtx, func() {
			metrics.SequenceOverrides.Inc()
		})
		return writeAudit(txCtx, s.auditRepo, &viewer.UserID, model.ActionOverrideSequence, m.ID.String(), seq, map[string]interface{}{
			"previous_sequence": previous,
			"was_approved":      wasApproved,
			"request_id":        requestID.String(),
		})
	})
	if err != nil {
		return nil, duplicateOr(ctx, s.approvalRepo, machineID, err)
	}

	logger.Info("machine sequence overridden",
		zap.String("machine_id", machineID.String()),
		zap.String("sequence", seq),
		zap.Strings("warnings", warnings))
	return s.result(ctx, machineID, requestID, warnings)
}

func (s *machineService) GetMachine(ctx context.Context, id string) (*MachineResponse, error) {
	machineID, err := parseID(id, "machine id")
	if err != nil {
		return nil, err
	}
	m, err := s.machineRepo.FindByID(ctx, machineID)
	if err != nil {
		return nil, notFoundOr(err, "machine")
	}
	resp := toMachineResponse(*m)
	return &resp, nil
}

func (s *machineService) ListMachines(ctx context.Context, viewer Viewer, filter MachineListFilter) ([]MachineResponse, int64, error) {
	p := pagination.Normalize(filter.Page, filter.Limit)
	repoFilter := repository.MachineFilter{
		Search: strings.TrimSpace(filter.Search),
		Offset: p.Offset(),
		Limit:  p.Limit,
	}
	switch strings.ToLower(strings.TrimSpace(filter.IsApproved)) {
	case "":
	case "true":
		v := true
		repoFilter.IsApproved = &v
	case "false":
		v := false
		repoFilter.IsApproved = &v
	default:
		return nil, 0, apperror.Validation("isApproved must be true or false")
	}
	if filter.Mine {
		repoFilter.CreatedBy = &viewer.UserID
	}

	machines, total, err := s.machineRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch machines: %w", err)
	}
	result := make([]MachineResponse, 0, len(machines))
	for _, m := range machines {
		result = append(result, toMachineResponse(m))
	}
	return result, total, nil
}

func (s *machineService) result(ctx context.Context, machineID uuid.UUID, requestID *uuid.UUID, warnings []string) (*MachineResult, error) {
	m, err := s.machineRepo.FindByID(ctx, machineID)
	if err != nil {
		return nil, notFoundOr(err, "machine")
	}
	out := &MachineResult{Machine: toMachineResponse(*m), Warnings: warnings}
	if requestID != nil {
		req, err := s.approvalRepo.FindByIDWithRelations(ctx, *requestID)
		if err != nil {
			return nil, notFoundOr(err, "approval request")
		}
		resp := toApprovalResponse(*req)
		out.Request = &resp
	}
	return out, nil
}

// --- Response mappers ---

func toMachineResponse(m model.Machine) MachineResponse {
	resp := MachineResponse{
		ID:               m.ID.String(),
		SoID:             uuidPtrString(m.SoID),
		Location:         m.Location,
		DispatchDate:     m.DispatchDateString(),
		Sequence:         m.Sequence,
		SequenceNumber:   m.SequenceNumber,
		SequenceConfigID: uuidPtrString(m.SequenceConfigID),
		Images:           model.StringList(m.Images),
		Documents:        model.StringList(m.Documents),
		Metadata:         map[string]interface{}(m.Metadata),
		IsApproved:       m.IsApproved,
		CreatedBy:        uuidPtrString(m.CreatedBy),
		CreatedAt:        m.CreatedAt.Format(timeLayout),
		UpdatedAt:        m.UpdatedAt.Format(timeLayout),
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if resp.Documents == nil {
		resp.Documents = []string{}
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]interface{}{}
	}
	if m.Creator != nil {
		resp.CreatorName = m.Creator.Name()
	}
	if so := m.SalesOrder; so != nil {
		resp.SoNumber = so.SoNumber
		resp.CategoryID = uuidPtrString(so.CategoryID)
		resp.SubcategoryID = uuidPtrString(so.SubcategoryID)
		if so.Category != nil {
			resp.CategoryName = so.Category.Name
		}
		if so.Subcategory != nil {
			resp.SubcategoryName = so.Subcategory.Name
		}
	}
	return resp
}
