package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dispatchconsole/internal/model"
	"dispatchconsole/internal/repository"
	"dispatchconsole/internal/testutil"
)

type approverCall struct {
	Roles     []string
	RequestID uuid.UUID
	MachineID uuid.UUID
}

type requesterCall struct {
	Requester uuid.UUID
	RequestID uuid.UUID
	Status    string
}

// recordingNotifier captures notifications instead of delivering them.
type recordingNotifier struct {
	mu         sync.Mutex
	approvers  []approverCall
	requesters []requesterCall
}

func (n *recordingNotifier) NotifyApprovers(_ context.Context, roles []string, requestID, machineID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approvers = append(n.approvers, approverCall{Roles: roles, RequestID: requestID, MachineID: machineID})
}

func (n *recordingNotifier) NotifyRequester(_ context.Context, requester, requestID uuid.UUID, status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requesters = append(n.requesters, requesterCall{Requester: requester, RequestID: requestID, Status: status})
}

func (n *recordingNotifier) approverCalls() []approverCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]approverCall(nil), n.approvers...)
}

func (n *recordingNotifier) requesterCalls() []requesterCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]requesterCall(nil), n.requesters...)
}

type harness struct {
	db        *gorm.DB
	notifier  *recordingNotifier
	sequences SequenceService
	approvals ApprovalService
	machines  MachineService
	catalog   CatalogService
	users     UserService
	roles     RoleService
	audit     AuditService
	stats     StatisticsService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.OpenDB(t)
	tx := repository.NewTransactionManager(db)

	approvalRepo := repository.NewApprovalRepository(db)
	machineRepo := repository.NewMachineRepository(db)
	salesOrderRepo := repository.NewSalesOrderRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	configRepo := repository.NewSequenceConfigRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	settings := ApprovalSettings{DefaultApproverRoles: []string{model.RoleManager}, AdminRole: model.RoleAdmin}
	notifier := &recordingNotifier{}

	sequences := NewSequenceService(configRepo, categoryRepo, machineRepo, auditRepo, tx)
	approvals := NewApprovalService(approvalRepo, machineRepo, salesOrderRepo, roleRepo, auditRepo, sequences, notifier, tx, settings)

	return &harness{
		db:        db,
		notifier:  notifier,
		sequences: sequences,
		approvals: approvals,
		machines:  NewMachineService(machineRepo, salesOrderRepo, approvalRepo, auditRepo, approvals, sequences, tx, settings),
		catalog:   NewCatalogService(categoryRepo, salesOrderRepo, auditRepo, tx),
		users:     NewUserService(userRepo, roleRepo, tx, "test-secret"),
		roles:     NewRoleService(roleRepo),
		audit:     NewAuditService(auditRepo),
		stats:     NewStatisticsService(db),
	}
}

func viewerOf(u *model.User) Viewer {
	v := Viewer{UserID: u.ID}
	for _, r := range u.Roles {
		v.Roles = append(v.Roles, r.Name)
	}
	return v
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func boolPtr(b bool) *bool { return &b }
