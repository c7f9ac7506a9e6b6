package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"dispatchconsole/internal/middleware"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/notification"
	"dispatchconsole/internal/repository"
	"dispatchconsole/internal/service"
	"dispatchconsole/internal/testutil"
)

const testSecret = "handler-test-secret"

type apiEnv struct {
	db     *gorm.DB
	router *gin.Engine
	users  service.UserService
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenDB(t)
	tx := repository.NewTransactionManager(db)
	approvalRepo := repository.NewApprovalRepository(db)
	machineRepo := repository.NewMachineRepository(db)
	salesOrderRepo := repository.NewSalesOrderRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	settings := service.ApprovalSettings{DefaultApproverRoles: []string{model.RoleManager}, AdminRole: model.RoleAdmin}
	sequences := service.NewSequenceService(repository.NewSequenceConfigRepository(db), categoryRepo, machineRepo, auditRepo, tx)
	approvals := service.NewApprovalService(approvalRepo, machineRepo, salesOrderRepo, roleRepo, auditRepo, sequences, notification.Nop{}, tx, settings)
	machines := service.NewMachineService(machineRepo, salesOrderRepo, approvalRepo, auditRepo, approvals, sequences, tx, settings)
	users := service.NewUserService(repository.NewUserRepository(db), roleRepo, tx, testSecret)

	router := gin.New()
	router.Use(middleware.RequestID())
	api := router.Group("/api", middleware.NewAuthenticator(testSecret).RequireAuth())
	NewSequenceHandler(sequences, model.RoleAdmin).RegisterRoutes(api)
	NewApprovalHandler(approvals).RegisterRoutes(api)
	NewMachineHandler(machines).RegisterRoutes(api)
	NewCatalogHandler(service.NewCatalogService(categoryRepo, salesOrderRepo, auditRepo, tx), model.RoleAdmin).RegisterRoutes(api)
	NewAuditHandler(service.NewAuditService(auditRepo), model.RoleAdmin, model.RoleManager).RegisterRoutes(api)
	NewUserHandler(users, model.RoleAdmin).RegisterRoutes(api)
	NewRoleHandler(service.NewRoleService(roleRepo)).RegisterRoutes(api)
	NewStatisticsHandler(service.NewStatisticsService(db), model.RoleAdmin, model.RoleManager).RegisterRoutes(api)

	return &apiEnv{db: db, router: router, users: users}
}

func (e *apiEnv) token(t *testing.T, username string) string {
	t.Helper()
	tok, err := e.users.IssueToken(context.Background(), username, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

type apiResponse struct {
	Status     string                 `json:"status"`
	StatusCode int                    `json:"status_code"`
	Data       json.RawMessage        `json:"data"`
	Warnings   []string               `json:"warnings"`
	Error      string                 `json:"error"`
	Code       string                 `json:"code"`
	Params     map[string]interface{} `json:"params"`
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body interface{}) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var res apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w.Code, res
}

func TestAPI_RequiresToken(t *testing.T) {
	e := newAPI(t)

	code, _ := e.do(t, http.MethodGet, "/api/approvals", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodGet, "/api/approvals", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAPI_ApprovalFlow(t *testing.T) {
	e := newAPI(t)
	testutil.CreateUser(t, e.db, "dana", model.RoleDispatcher)
	testutil.CreateUser(t, e.db, "max", model.RoleManager)
	category := testutil.CreateCategory(t, e.db, "Pumps", model.RoleManager)
	so := testutil.CreateSalesOrder(t, e.db, "SO-1", &category.ID, nil)
	dana, max := e.token(t, "dana"), e.token(t, "max")

	code, res := e.do(t, http.MethodPost, "/api/machines", dana, map[string]interface{}{
		"so_id": so.ID.String(), "location": "Dock 4", "dispatch_date": "2024-05-01",
	})
	require.Equal(t, http.StatusCreated, code, res.Error)
	var created service.MachineResult
	require.NoError(t, json.Unmarshal(res.Data, &created))
	require.NotNil(t, created.Request)
	requestID := created.Request.ID

	code, res = e.do(t, http.MethodPost, "/api/approvals", dana, map[string]interface{}{
		"machine_id": created.Machine.ID, "approval_type": "EDIT", "proposed_changes": map[string]string{"location": "Dock 5"},
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "DUPLICATE_PENDING_REQUEST", res.Code)
	assert.Equal(t, requestID, res.Params["request_id"])

	code, res = e.do(t, http.MethodPut, "/api/approvals/"+requestID+"/approve", dana, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NOT_AUTHORIZED", res.Code)

	code, res = e.do(t, http.MethodPut, "/api/approvals/"+requestID+"/reject", max, map[string]string{"rejection_reason": "   short    "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)

	code, res = e.do(t, http.MethodPut, "/api/approvals/"+requestID+"/approve", max, map[string]string{"approver_notes": "fine"})
	require.Equal(t, http.StatusOK, code, res.Error)
	var decided service.ApprovalRequestResponse
	require.NoError(t, json.Unmarshal(res.Data, &decided))
	assert.Equal(t, model.ApprovalApproved, decided.Status)

	code, res = e.do(t, http.MethodPut, "/api/approvals/"+requestID+"/approve", max, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_DECIDED", res.Code)

	code, res = e.do(t, http.MethodPost, "/api/machines/"+created.Machine.ID+"/edit-requests", dana, map[string]interface{}{
		"proposed_changes": map[string]string{"location": "Dock 9"},
	})
	assert.Equal(t, http.StatusLocked, code)
	assert.Equal(t, "MACHINE_LOCKED", res.Code)

	code, res = e.do(t, http.MethodGet, "/api/approvals?status=APPROVED", max, nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Items []service.ApprovalRequestResponse `json:"items"`
		Total int64                             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &page))
	assert.Equal(t, int64(1), page.Total)
}

func TestAPI_SequenceConfigAdminOnly(t *testing.T) {
	e := newAPI(t)
	testutil.CreateUser(t, e.db, "dana", model.RoleDispatcher)
	testutil.CreateUser(t, e.db, "ada", model.RoleAdmin)
	category := testutil.CreateCategory(t, e.db, "Pumps")

	body := map[string]interface{}{"category_id": category.ID.String(), "prefix": "PMP", "template": "{sequence}-{category}"}

	code, _ := e.do(t, http.MethodPost, "/api/sequence-configs", e.token(t, "dana"), body)
	assert.Equal(t, http.StatusForbidden, code)

	code, res := e.do(t, http.MethodPost, "/api/sequence-configs", e.token(t, "ada"), body)
	require.Equal(t, http.StatusCreated, code, res.Error)

	code, res = e.do(t, http.MethodPost, "/api/sequence-configs", e.token(t, "ada"), map[string]interface{}{
		"category_id": category.ID.String(), "prefix": "PMP", "template": "{category}",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_TEMPLATE", res.Code)

	code, res = e.do(t, http.MethodPost, "/api/sequences/generate", e.token(t, "dana"), map[string]string{"category_id": category.ID.String()})
	require.Equal(t, http.StatusOK, code, res.Error)
	var gen service.GeneratedSequenceResponse
	require.NoError(t, json.Unmarshal(res.Data, &gen))
	assert.Equal(t, "001-PUMPS", gen.Sequence)

	code, res = e.do(t, http.MethodPost, "/api/sequences/validate", e.token(t, "dana"), map[string]string{
		"category_id": category.ID.String(), "sequence": "PUMPS-7",
	})
	require.Equal(t, http.StatusOK, code, res.Error)
	var check service.SequenceValidationResponse
	require.NoError(t, json.Unmarshal(res.Data, &check))
	assert.False(t, check.Valid)

	other := testutil.CreateCategory(t, e.db, "Fans")
	code, res = e.do(t, http.MethodPost, "/api/sequences/generate", e.token(t, "dana"), map[string]string{"category_id": other.ID.String()})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NO_SEQUENCE_CONFIG", res.Code)
}

func TestAPI_Me(t *testing.T) {
	e := newAPI(t)
	testutil.CreateUser(t, e.db, "dana", model.RoleDispatcher)

	code, res := e.do(t, http.MethodGet, "/api/me", e.token(t, "dana"), nil)
	require.Equal(t, http.StatusOK, code)
	var me service.UserResponse
	require.NoError(t, json.Unmarshal(res.Data, &me))
	assert.Equal(t, "dana", me.Username)
	assert.Equal(t, []string{model.RoleDispatcher}, me.Roles)

	code, _ = e.do(t, http.MethodGet, "/api/audit-logs", e.token(t, "dana"), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAPI_Statistics(t *testing.T) {
	e := newAPI(t)
	testutil.CreateUser(t, e.db, "dana", model.RoleDispatcher)
	testutil.CreateUser(t, e.db, "max", model.RoleManager)

	code, _ := e.do(t, http.MethodGet, "/api/statistics", e.token(t, "dana"), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, res := e.do(t, http.MethodGet, "/api/statistics?start_date=yesterday", e.token(t, "max"), nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)

	code, res = e.do(t, http.MethodGet, "/api/statistics", e.token(t, "max"), nil)
	require.Equal(t, http.StatusOK, code, res.Error)
	var stats service.StatisticsResponse
	require.NoError(t, json.Unmarshal(res.Data, &stats))
	assert.Equal(t, int64(0), stats.MachinesApproved)
}
