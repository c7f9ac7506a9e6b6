package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/approval"
	"dispatchconsole/internal/logger"
	"dispatchconsole/internal/metrics"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/notification"
	"dispatchconsole/internal/repository"
	"dispatchconsole/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateApprovalRequestDTO struct {
	MachineID       string          `json:"machine_id" binding:"required"`
	ApprovalType    string          `json:"approval_type" binding:"required"`
	ApproverRoles   []string        `json:"approver_roles"`
	RequestNotes    string          `json:"request_notes"`
	ProposedChanges json.RawMessage `json:"proposed_changes" swaggertype:"object"`
}

type EditApprovalRequestDTO struct {
	ApprovalType    *string         `json:"approval_type"`
	ApproverRoles   *[]string       `json:"approver_roles"`
	RequestNotes    *string         `json:"request_notes"`
	ProposedChanges json.RawMessage `json:"proposed_changes" swaggertype:"object"`
}

type ApproveRequestDTO struct {
	ApproverNotes string `json:"approver_notes"`
}

type RejectRequestDTO struct {
	RejectionReason  string          `json:"rejection_reason" binding:"required,min=10"`
	ApproverNotes    string          `json:"approver_notes"`
	SuggestedChanges json.RawMessage `json:"suggested_changes" swaggertype:"object"`
}

// ApprovalListFilter carries the listing query parameters as received.
type ApprovalListFilter struct {
	ApprovalType  string
	Status        string
	RequestedBy   string
	CreatedBy     string
	DateFrom      string
	DateTo        string
	SoNumber      string
	PoNumber      string
	Sequence      string
	CategoryID    string
	MetadataKey   string
	MetadataValue string
	Search        string
	Page          int
	Limit         int
}

type DecisionResponse struct {
	DecidedBy        string          `json:"decided_by"`
	DeciderName      string          `json:"decider_name"`
	DecidedAt        string          `json:"decided_at"`
	ApproverNotes    string          `json:"approver_notes"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	SuggestedChanges json.RawMessage `json:"suggested_changes,omitempty" swaggertype:"object"`
}

type ApprovalRequestResponse struct {
	ID              string            `json:"id"`
	MachineID       string            `json:"machine_id"`
	MachineSequence string            `json:"machine_sequence"`
	SoNumber        string            `json:"so_number,omitempty"`
	ApprovalType    string            `json:"approval_type"`
	Status          string            `json:"status"`
	RequestedBy     string            `json:"requested_by"`
	RequesterName   string            `json:"requester_name"`
	ApproverRoles   []string          `json:"approver_roles"`
	RequestNotes    string            `json:"request_notes"`
	ProposedChanges json.RawMessage   `json:"proposed_changes" swaggertype:"object"`
	Decision        *DecisionResponse `json:"decision,omitempty"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

// ApprovalResult is a request plus the non-fatal problems met while producing it.
type ApprovalResult struct {
	Request  ApprovalRequestResponse `json:"request"`
	Warnings []string                `json:"warnings,omitempty"`
}

// ApprovalSettings are the workflow defaults taken from configuration.
type ApprovalSettings struct {
	DefaultApproverRoles []string
	AdminRole            string
}

// NewRequest is a request opened on behalf of another operation, e.g. a machine
// creation or a sequence override, inside that operation's transaction.
type NewRequest struct {
	Machine       *model.Machine
	Changes       approval.Changes
	RequestedBy   uuid.UUID
	ApproverRoles []string
	Notes         string
	// Override skips the requester and lock checks; used when the system itself
	// reopens review of a machine.
	Override bool
}

// --- Interface ---

type ApprovalService interface {
	CreateApprovalRequest(ctx context.Context, viewer Viewer, dto CreateApprovalRequestDTO) (*ApprovalResult, error)
	EditApprovalRequest(ctx context.Context, viewer Viewer, id string, dto EditApprovalRequestDTO) (*ApprovalRequestResponse, error)
	ApproveRequest(ctx context.Context, viewer Viewer, id string, dto ApproveRequestDTO) (*ApprovalResult, error)
	RejectRequest(ctx context.Context, viewer Viewer, id string, dto RejectRequestDTO) (*ApprovalRequestResponse, error)
	CancelRequest(ctx context.Context, viewer Viewer, id string) (*ApprovalRequestResponse, error)
	ResubmitSuggestion(ctx context.Context, viewer Viewer, id string) (*ApprovalResult, error)
	GetApprovalRequest(ctx context.Context, viewer Viewer, id string) (*ApprovalRequestResponse, error)
	ListApprovalRequests(ctx context.Context, viewer Viewer, filter ApprovalListFilter) ([]ApprovalRequestResponse, int64, error)

	// Open creates a PENDING request within the transaction in ctx.
	Open(ctx context.Context, req NewRequest) (*model.ApprovalRequest, error)
	// MergeSequence replaces the sequence proposed by a PENDING request within the
	// transaction in ctx and re-notifies its approvers after commit.
	MergeSequence(ctx context.Context, req *model.ApprovalRequest, seq string, by uuid.UUID) error
	// ApproverRolesFor returns the default approver set for a machine.
	ApproverRolesFor(m *model.Machine) []string
}

// --- Implementation ---

type approvalService struct {
	approvalRepo   repository.ApprovalRepository
	machineRepo    repository.MachineRepository
	salesOrderRepo repository.SalesOrderRepository
	roleRepo       repository.RoleRepository
	auditRepo      repository.AuditRepository
	sequences      SequenceService
	notifier       notification.Notifier
	txManager      repository.TransactionManager
	settings       ApprovalSettings
}

func NewApprovalService(
	approvalRepo repository.ApprovalRepository,
	machineRepo repository.MachineRepository,
	salesOrderRepo repository.SalesOrderRepository,
	roleRepo repository.RoleRepository,
	auditRepo repository.AuditRepository,
	sequences SequenceService,
	notifier notification.Notifier,
	txManager repository.TransactionManager,
	settings ApprovalSettings,
) ApprovalService {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &approvalService{
		approvalRepo:   approvalRepo,
		machineRepo:    machineRepo,
		salesOrderRepo: salesOrderRepo,
		roleRepo:       roleRepo,
		auditRepo:      auditRepo,
		sequences:      sequences,
		notifier:       notifier,
		txManager:      txManager,
		settings:       settings,
	}
}

func (s *approvalService) ApproverRolesFor(m *model.Machine) []string {
	if m != nil && m.SalesOrder != nil && m.SalesOrder.Category != nil {
		if roles := approval.NormalizeRoles(m.SalesOrder.Category.Approvers()); len(roles) > 0 {
			return roles
		}
	}
	return approval.NormalizeRoles(s.settings.DefaultApproverRoles)
}

func (s *approvalService) isAdmin(v Viewer) bool {
	return s.settings.AdminRole != "" && v.HasRole(s.settings.AdminRole)
}

func (s *approvalService) canView(v Viewer, req *model.ApprovalRequest) bool {
	return s.isAdmin(v) || req.RequestedBy == v.UserID || approval.Intersects(v.Roles, req.ApproverRoles())
}

// duplicateOr turns a unique violation on the pending index into DuplicatePendingRequest.
// Outside a transaction it looks up the request that won so the caller can show it.
func duplicateOr(ctx context.Context, repo repository.ApprovalRepository, machineID uuid.UUID, err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	existing := ""
	if !repository.InTx(ctx) {
		if req, findErr := repo.FindPendingByMachine(ctx, machineID); findErr == nil {
			existing = req.ID.String()
		}
	}
	return apperror.DuplicatePendingRequest(machineID.String(), existing)
}

// guardType rejects request types that may not target m in its current state.
func guardType(t approval.Type, m *model.Machine) error {
	switch t {
	case approval.TypeCreation:
		if m.IsApproved {
			return apperror.Conflict("machine is already approved")
		}
	case approval.TypeEdit:
		if m.IsApproved {
			return apperror.MachineLocked("approved machines cannot be edited")
		}
	}
	return nil
}

func (s *approvalService) Open(ctx context.Context, in NewRequest) (*model.ApprovalRequest, error) {
	m := in.Machine
	t := in.Changes.Type()

	if !in.Override {
		if err := guardType(t, m); err != nil {
			return nil, err
		}
		if t != approval.TypeCreation && (m.CreatedBy == nil || *m.CreatedBy != in.RequestedBy) {
			return nil, apperror.NotAuthorized("only the machine's creator can request this change")
		}
	}

	roles := approval.NormalizeRoles(in.ApproverRoles)
	if len(roles) == 0 {
		roles = s.ApproverRolesFor(m)
	}
	if len(roles) == 0 {
		return nil, apperror.Validation("approval request needs at least one approver role")
	}

	if existing, err := s.approvalRepo.FindPendingByMachine(ctx, m.ID); err == nil {
		return nil, apperror.DuplicatePendingRequest(m.ID.String(), existing.ID.String())
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check pending requests: %w", err)
	}

	changes, err := approval.Encode(in.Changes)
	if err != nil {
		return nil, err
	}
	machineID := m.ID
	req := &model.ApprovalRequest{
		MachineID:        m.ID,
		ApprovalType:     string(t),
		Status:           model.ApprovalPending,
		PendingMachineID: &machineID,
		RequestedBy:      in.RequestedBy,
		RequestNotes:     strings.TrimSpace(in.Notes),
		ProposedChanges:  changes,
	}
	for _, role := range roles {
		req.Approvers = append(req.Approvers, model.ApprovalApprover{Role: role})
	}

	if err := s.approvalRepo.Create(ctx, req); err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.DuplicatePendingRequest(m.ID.String(), "")
		}
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}

	requester := in.RequestedBy
	if err := writeAudit(ctx, s.auditRepo, &requester, model.ActionCreateApprovalRequest, req.ID.String(), string(t), map[string]interface{}{
		"machine_id":     m.ID.String(),
		"approver_roles": roles,
		"override":       in.Override,
	}); err != nil {
		return nil, err
	}

	requestID := req.ID
	repository.AfterCommit(ctx, func() {
		metrics.ApprovalRequestsCreated.WithLabelValues(string(t)).Inc()
		s.notifier.NotifyApprovers(context.Background(), roles, requestID, machineID)
	})
	return req, nil
}

func (s *approvalService) MergeSequence(ctx context.Context, req *model.ApprovalRequest, seq string, by uuid.UUID) error {
	changes, err := approval.Decode(approval.Type(req.ApprovalType), []byte(req.ProposedChanges))
	if err != nil {
		return err
	}
	merged, ok := approval.WithSequence(changes, seq)
	if !ok {
		return apperror.DuplicatePendingRequest(req.MachineID.String(), req.ID.String())
	}
	raw, err := approval.Encode(merged)
	if err != nil {
		return err
	}

	updated, err := s.approvalRepo.UpdatePending(ctx, req.ID, repository.PendingPatch{ProposedChanges: raw})
	if err != nil {
		return fmt.Errorf("failed to update approval request: %w", err)
	}
	if !updated {
		return apperror.AlreadyDecided("a decision has already been made on this request")
	}
	req.ProposedChanges = raw

	if err := writeAudit(ctx, s.auditRepo, &by, model.ActionEditApprovalRequest, req.ID.String(), req.ApprovalType, map[string]interface{}{
		"proposed_changes": json.RawMessage(raw),
		"override":         true,
	}); err != nil {
		return err
	}

	roles, requestID, machineID := req.ApproverRoles(), req.ID, req.MachineID
	repository.AfterCommit(ctx, func() {
		s.notifier.NotifyApprovers(context.Background(), roles, requestID, machineID)
	})
	return nil
}

func (s *approvalService) CreateApprovalRequest(ctx context.Context, viewer Viewer, dto CreateApprovalRequestDTO) (*ApprovalResult, error) {
	machineID, err := parseID(dto.MachineID, "machine_id")
	if err != nil {
		return nil, err
	}
	t, err := approval.ParseType(dto.ApprovalType)
	if err != nil {
		return nil, err
	}
	changes, err := approval.Decode(t, dto.ProposedChanges)
	if err != nil {
		return nil, err
	}

	var created *model.ApprovalRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		m, err := s.machineRepo.FindByIDForUpdate(txCtx, machineID)
		if err != nil {
			return notFoundOr(err, "machine")
		}
		created, err = s.Open(txCtx, NewRequest{
			Machine:       m,
			Changes:       changes,
			RequestedBy:   viewer.UserID,
			ApproverRoles: dto.ApproverRoles,
			Notes:         dto.RequestNotes,
		})
		return err
	})
	if err != nil {
		return nil, duplicateOr(ctx, s.approvalRepo, machineID, err)
	}

	resp, err := s.load(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	return &ApprovalResult{Request: *resp}, nil
}

func (s *approvalService) EditApprovalRequest(ctx context.Context, viewer Viewer, id string, dto EditApprovalRequestDTO) (*ApprovalRequestResponse, error) {
	requestID, err := parseID(id, "approval request id")
	if err != nil {
		return nil, err
	}

	var notifyRoles []string
	var machineID uuid.UUID
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.approvalRepo.FindByID(txCtx, requestID)
		if err != nil {
			return notFoundOr(err, "approval request")
		}
		if req.RequestedBy != viewer.UserID {
			return apperror.NotAuthorized("only the requester can edit this request")
		}
		if err := approval.EnsurePending(req.Status); err != nil {
			return err
		}
		machineID = req.MachineID

		patch := repository.PendingPatch{RequestNotes: dto.RequestNotes}
		details := map[string]interface{}{}

		t := approval.Type(req.ApprovalType)
		if dto.ApprovalType != nil {
			if t, err = approval.ParseType(*dto.ApprovalType); err != nil {
				return err
			}
			if t != approval.Type(req.ApprovalType) {
				typ := string(t)
				patch.ApprovalType = &typ
				details["approval_type"] = typ
			}
		}

		raw := []byte(req.ProposedChanges)
		if len(dto.ProposedChanges) > 0 {
			raw = dto.ProposedChanges
		}
		if patch.ApprovalType != nil || len(dto.ProposedChanges) > 0 {
			changes, err := approval.Decode(t, raw)
			if err != nil {
				return err
			}
			m, err := s.machineRepo.FindByID(txCtx, req.MachineID)
			if err != nil {
				return notFoundOr(err, "machine")
			}
			if err := guardType(t, m); err != nil {
				return err
			}
			if patch.ProposedChanges, err = approval.Encode(changes); err != nil {
				return err
			}
			details["proposed_changes"] = json.RawMessage(patch.ProposedChanges)
		}

		ok, err := s.approvalRepo.UpdatePending(txCtx, req.ID, patch)
		if err != nil {
			return fmt.Errorf("failed to update approval request: %w", err)
		}
		if !ok {
			return apperror.AlreadyDecided("a decision has already been made on this request")
		}

		if dto.ApproverRoles != nil {
			roles := approval.NormalizeRoles(*dto.ApproverRoles)
			if len(roles) == 0 {
				return apperror.Validation("approval request needs at least one approver role")
			}
			if err := s.approvalRepo.ReplaceApprovers(txCtx, req.ID, roles); err != nil {
				return fmt.Errorf("failed to update approver roles: %w", err)
			}
			details["approver_roles"] = roles
			notifyRoles = roles
		}

		return writeAudit(txCtx, s.auditRepo, &viewer.UserID, model.ActionEditApprovalRequest, req.ID.String(), string(t), details)
	})
	if err != nil {
		return nil, err
	}

	if len(notifyRoles) > 0 {
		s.notifier.NotifyApprovers(ctx, notifyRoles, requestID, machineID)
	}
	return s.load(ctx, requestID)
}

// authorizeDecision requires the decider to hold one of the request's approver roles.
func (s *approvalService) authorizeDecision(ctx context.Context, viewer Viewer, req *model.ApprovalRequest) error {
	ok, err := s.roleRepo.HasAnyRole(ctx, req.ApproverRoles(), viewer.UserID)
	if err != nil {
		return fmt.Errorf("failed to check role membership: %w", err)
	}
	if !ok {
		return apperror.NotAuthorized("you are not an approver for this request").
			WithParams(map[string]interface{}{"approver_roles": req.ApproverRoles()})
	}
	return nil
}

func (s *approvalService) ApproveRequest(ctx context.Context, viewer Viewer, id string, dto ApproveRequestDTO) (*ApprovalResult, error) {
	requestID, err := parseID(id, "approval request id")
	if err != nil {
		return nil, err
	}

	var warnings []string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.approvalRepo.FindByID(txCtx, requestID)
		if err != nil {
			return notFoundOr(err, "approval request")
		}
		if err := approval.EnsurePending(req.Status); err != nil {
			return err
		}
		if err := s.authorizeDecision(txCtx, viewer, req); err != nil {
			return err
		}

		changes, err := approval.Decode(approval.Type(req.ApprovalType), []byte(req.ProposedChanges))
		if err != nil {
			return err
		}

		ok, err := s.approvalRepo.MarkDecided(txCtx, req.ID, repository.Decision{
			Status:        model.ApprovalApproved,
			DecidedBy:     viewer.UserID,
			DecidedAt:     time.Now(),
			ApproverNotes: strings.TrimSpace(dto.ApproverNotes),
		})
		if err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}
		if !ok {
			return apperror.AlreadyDecided("a decision has already been made on this request")
		}

		warnings, err = s.apply(txCtx, req, changes)
		if err != nil {
			return err
		}

		if err := writeAudit(txCtx, s.auditRepo, &viewer.UserID, model.ActionApproveRequest, req.ID.String(), req.ApprovalType, map[string]interface{}{
			"machine_id": req.MachineID.String(),
			"warnings":   warnings,
		}); err != nil {
			return err
		}

		requester, approvalType := req.RequestedBy, req.ApprovalType
		repository.AfterCommit(txCtx, func() {
			metrics.ApprovalDecisions.WithLabelValues(approvalType, model.ApprovalApproved).Inc()
			s.notifier.NotifyRequester(context.Background(), requester, requestID, model.ApprovalApproved)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &ApprovalResult{Request: *resp, Warnings: warnings}, nil
}

// apply merges the approved changes into the machine. Missing categories and missing
// sequence configs only produce warnings.
func (s *approvalService) apply(ctx context.Context, req *model.ApprovalRequest, changes approval.Changes) ([]string, error) {
	var warnings []string

	m, err := s.machineRepo.FindByIDForUpdate(ctx, req.MachineID)
	if err != nil {
		return nil, notFoundOr(err, "machine")
	}
	previousSO := m.SoID

	outcome, err := approval.Apply(changes, m)
	if err != nil {
		return nil, err
	}
	if outcome.Delete {
		if err := s.machineRepo.SoftDelete(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("failed to delete machine: %w", err)
		}
		return nil, nil
	}

	if !sameID(previousSO, m.SoID) {
		m.SalesOrder = nil
		if m.SoID != nil {
			so, err := s.salesOrderRepo.FindByID(ctx, *m.SoID)
			if err != nil {
				return nil, notFoundOr(err, "sales order")
			}
			m.SalesOrder = so
		}
	}

	categoryID, subcategoryID := m.CategoryScope()
	if creation, ok := changes.(approval.CreationChanges); ok && creation.AutoSequence && m.Sequence == "" {
		if categoryID == nil {
			warnings = append(warnings, "machine has no category; sequence generation skipped")
		} else {
			issued, err := s.sequences.Next(ctx, Scope{CategoryID: *categoryID, SubcategoryID: subcategoryID})
			switch {
			case apperror.Is(err, apperror.KindNoSequenceConfig):
				warnings = append(warnings, "no sequence config for the machine's category; sequence generation skipped")
			case err != nil:
				return nil, err
			default:
				n := issued.Number
				m.Sequence = issued.Sequence
				m.SequenceNumber = &n
				m.SequenceConfigID = &issued.ConfigID
			}
		}
	} else if outcome.SequenceChanged && m.Sequence != "" {
		if categoryID == nil {
			warnings = append(warnings, "machine has no category; sequence was not validated")
		} else {
			check, err := s.sequences.Check(ctx, Scope{CategoryID: *categoryID, SubcategoryID: subcategoryID}, m.Sequence)
			switch {
			case apperror.Is(err, apperror.KindNoSequenceConfig):
				warnings = append(warnings, "no sequence config for the machine's category; sequence was not validated")
			case err != nil:
				return nil, err
			case !check.Valid:
				warnings = append(warnings, fmt.Sprintf("sequence %q does not match the category template", m.Sequence))
			}
		}
	}

	m.IsApproved = true
	if err := s.machineRepo.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to update machine: %w", err)
	}

	for _, w := range warnings {
		logger.Warn("approval applied with warning",
			zap.String("request_id", req.ID.String()),
			zap.String("machine_id", m.ID.String()),
			zap.String("warning", w))
	}
	return warnings, nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *approvalService) RejectRequest(ctx context.Context, viewer Viewer, id string, dto RejectRequestDTO) (*ApprovalRequestResponse, error) {
	requestID, err := parseID(id, "approval request id")
	if err != nil {
		return nil, err
	}
	if err := approval.ValidateRejectionReason(dto.RejectionReason); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.approvalRepo.FindByID(txCtx, requestID)
		if err != nil {
			return notFoundOr(err, "approval request")
		}
		if err := approval.EnsurePending(req.Status); err != nil {
			return err
		}
		if err := s.authorizeDecision(txCtx, viewer, req); err != nil {
			return err
		}

		decision := repository.Decision{
			Status:          model.ApprovalRejected,
			DecidedBy:       viewer.UserID,
			DecidedAt:       time.Now(),
			ApproverNotes:   strings.TrimSpace(dto.ApproverNotes),
			RejectionReason: strings.TrimSpace(dto.RejectionReason),
		}
		if len(dto.SuggestedChanges) > 0 && string(dto.SuggestedChanges) != "null" {
			suggested, err := approval.Decode(approval.Type(req.ApprovalType), dto.SuggestedChanges)
			if err != nil {
				return err
			}
			encoded, err := approval.Encode(suggested)
			if err != nil {
				return err
			}
			decision.SuggestedChanges = &encoded
		}

		ok, err := s.approvalRepo.MarkDecided(txCtx, req.ID, decision)
		if err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}
		if !ok {
			return apperror.AlreadyDecided("a decision has already been made on this request")
		}

		if err := writeAudit(txCtx, s.auditRepo, &viewer.UserID, model.ActionRejectRequest, req.ID.String(), req.ApprovalType, map[string]interface{}{
			"machine_id":     req.MachineID.String(),
			"reason":         decision.RejectionReason,
			"has_suggestion": decision.SuggestedChanges != nil,
		}); err != nil {
			return err
		}

		requester, approvalType := req.RequestedBy, req.ApprovalType
		repository.AfterCommit(txCtx, func() {
			metrics.ApprovalDecisions.WithLabelValues(approvalType, model.ApprovalRejected).Inc()
			s.notifier.NotifyRequester(context.Background(), requester, requestID, model.ApprovalRejected)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, requestID)
}

func (s *approvalService) CancelRequest(ctx context.Context, viewer Viewer, id string) (*ApprovalRequestResponse, error) {
	requestID, err := parseID(id, "approval request id")
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.approvalRepo.FindByID(txCtx, requestID)
		if err != nil {
			return notFoundOr(err, "approval request")
		}
		if req.RequestedBy != viewer.UserID {
			return apperror.NotAuthorized("only the requester can cancel this request")
		}
		if err := approval.EnsurePending(req.Status); err != nil {
			return err
		}

		ok, err := s.approvalRepo.MarkDecided(txCtx, req.ID, repository.Decision{
			Status:          model.ApprovalRejected,
			DecidedBy:       viewer.UserID,
			DecidedAt:       time.Now(),
			RejectionReason: approval.CancellationReason,
		})
		if err != nil {
			return fmt.Errorf("failed to cancel request: %w", err)
		}
		if !ok {
			return apperror.AlreadyDecided("a decision has already been made on this request")
		}

		approvalType := req.ApprovalType
		repository.AfterCommit(txCtx, func() {
			metrics.ApprovalDecisions.WithLabelValues(approvalType, "CANCELLED").Inc()
		})
		return writeAudit(txCtx, s.auditRepo, &viewer.UserID, model.ActionCancelRequest, req.ID.String(), req.ApprovalType, map[string]interface{}{
			"machine_id": req.MachineID.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, requestID)
}

func (s *approvalService) ResubmitSuggestion(ctx context.Context, viewer Viewer, id string) (*ApprovalResult, error) {
	requestID, err := parseID(id, "approval request id")
	if err != nil {
		return nil, err
	}

	var created *model.ApprovalRequest
	var machineID uuid.UUID
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.approvalRepo.FindByID(txCtx, requestID)
		if err != nil {
			return notFoundOr(err, "approval request")
		}
		if req.RequestedBy != viewer.UserID {
			return apperror.NotAuthorized("only the requester can resubmit this request")
		}
		if req.Status != model.ApprovalRejected || req.SuggestedChanges == nil {
			return apperror.Validation("only rejected requests with suggested changes can be resubmitted")
		}
		machineID = req.MachineID

		changes, err := approval.Decode(approval.Type(req.ApprovalType), *req.SuggestedChanges)
		if err != nil {
			return err
		}
		m, err := s.machineRepo.FindByIDForUpdate(txCtx, req.MachineID)
		if err != nil {
			return notFoundOr(err, "machine")
		}
		created, err = s.Open(txCtx, NewRequest{
			Machine:       m,
			Changes:       changes,
			RequestedBy:   viewer.UserID,
			ApproverRoles: req.ApproverRoles(),
			Notes:         "Resubmitted with suggested changes from request " + req.ID.String(),
		})
		return err
	})
	if err != nil {
		return nil, duplicateOr(ctx, s.approvalRepo, machineID, err)
	}

	resp, err := s.load(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	return &ApprovalResult{Request: *resp}, nil
}

func (s *approvalService) GetApprovalRequest(ctx context.Context, viewer Viewer, id string) (*ApprovalRequestResponse, error) {
	requestID, err := parseID(id, "approval request id")
	if err != nil {
		return nil, err
	}
	req, err := s.approvalRepo.FindByIDWithRelations(ctx, requestID)
	if err != nil {
		return nil, notFoundOr(err, "approval request")
	}
	if !s.canView(viewer, req) {
		return nil, apperror.NotAuthorized("you cannot view this approval request")
	}
	resp := toApprovalResponse(*req)
	return &resp, nil
}

func (s *approvalService) ListApprovalRequests(ctx context.Context, viewer Viewer, filter ApprovalListFilter) ([]ApprovalRequestResponse, int64, error) {
	repoFilter, err := s.buildFilter(filter)
	if err != nil {
		return nil, 0, err
	}
	vis := repository.Visibility{All: s.isAdmin(viewer), UserID: viewer.UserID, Roles: viewer.Roles}

	requests, total, err := s.approvalRepo.List(ctx, repoFilter, vis)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approval requests: %w", err)
	}
	result := make([]ApprovalRequestResponse, 0, len(requests))
	for _, r := range requests {
		result = append(result, toApprovalResponse(r))
	}
	return result, total, nil
}

func (s *approvalService) buildFilter(f ApprovalListFilter) (repository.ApprovalFilter, error) {
	out := repository.ApprovalFilter{
		SoNumber:      strings.TrimSpace(f.SoNumber),
		PoNumber:      strings.TrimSpace(f.PoNumber),
		Sequence:      strings.TrimSpace(f.Sequence),
		MetadataKey:   strings.TrimSpace(f.MetadataKey),
		MetadataValue: f.MetadataValue,
		Search:        strings.TrimSpace(f.Search),
	}
	if f.ApprovalType != "" {
		t, err := approval.ParseType(f.ApprovalType)
		if err != nil {
			return out, err
		}
		out.ApprovalType = string(t)
	}
	if f.Status != "" {
		st, err := approval.ParseStatus(f.Status)
		if err != nil {
			return out, err
		}
		out.Status = string(st)
	}

	var err error
	if out.RequestedBy, err = parseOptionalID(&f.RequestedBy, "requestedBy"); err != nil {
		return out, err
	}
	if out.CreatedBy, err = parseOptionalID(&f.CreatedBy, "createdBy"); err != nil {
		return out, err
	}
	if out.CategoryID, err = parseOptionalID(&f.CategoryID, "categoryId"); err != nil {
		return out, err
	}
	if out.DateFrom, err = parseDate(f.DateFrom, "dateFrom"); err != nil {
		return out, err
	}
	if out.DateTo, err = parseDate(f.DateTo, "dateTo"); err != nil {
		return out, err
	}
	if out.DateFrom != nil && out.DateTo != nil && out.DateTo.Before(*out.DateFrom) {
		return out, apperror.Validation("dateTo must not be before dateFrom")
	}

	p := pagination.Normalize(f.Page, f.Limit)
	out.Offset = p.Offset()
	out.Limit = p.Limit
	return out, nil
}

func parseDate(value, field string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return nil, apperror.Validation(field + " must be formatted YYYY-MM-DD")
	}
	return &t, nil
}

func (s *approvalService) load(ctx context.Context, id uuid.UUID) (*ApprovalRequestResponse, error) {
	req, err := s.approvalRepo.FindByIDWithRelations(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "approval request")
	}
	resp := toApprovalResponse(*req)
	return &resp, nil
}

// --- Response mappers ---

func toApprovalResponse(r model.ApprovalRequest) ApprovalRequestResponse {
	resp := ApprovalRequestResponse{
		ID:              r.ID.String(),
		MachineID:       r.MachineID.String(),
		ApprovalType:    r.ApprovalType,
		Status:          r.Status,
		RequestedBy:     r.RequestedBy.String(),
		ApproverRoles:   approval.NormalizeRoles(r.ApproverRoles()),
		RequestNotes:    r.RequestNotes,
		ProposedChanges: json.RawMessage(r.ProposedChanges),
		CreatedAt:       r.CreatedAt.Format(timeLayout),
		UpdatedAt:       r.UpdatedAt.Format(timeLayout),
	}
	if r.Requester != nil {
		resp.RequesterName = r.Requester.Name()
	}
	if r.Machine != nil {
		resp.MachineSequence = r.Machine.Sequence
		if r.Machine.SalesOrder != nil {
			resp.SoNumber = r.Machine.SalesOrder.SoNumber
		}
	}
	if r.Status != model.ApprovalPending && r.DecidedAt != nil {
		d := &DecisionResponse{
			DecidedAt:       r.DecidedAt.Format(timeLayout),
			ApproverNotes:   r.ApproverNotes,
			RejectionReason: r.RejectionReason,
		}
		if r.DecidedBy != nil {
			d.DecidedBy = r.DecidedBy.String()
		}
		if r.Decider != nil {
			d.DeciderName = r.Decider.Name()
		}
		if r.SuggestedChanges != nil {
			d.SuggestedChanges = json.RawMessage(*r.SuggestedChanges)
		}
		resp.Decision = d
	}
	return resp
}
