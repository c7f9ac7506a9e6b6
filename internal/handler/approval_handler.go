package handler

import (
	"net/http"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/approval"
	"dispatchconsole/internal/service"
	"dispatchconsole/pkg/pagination"
	"dispatchconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

// RegisterRoutes expects an authenticated group. Decision rights are checked per request
// against its approver roles, so no route-level role gate applies.
func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/approvals")
	{
		approvals.GET("", h.ListApprovalRequests)
		approvals.GET("/:id", h.GetApprovalRequest)
		approvals.POST("", h.CreateApprovalRequest)
		approvals.PATCH("/:id", h.EditApprovalRequest)
		approvals.PUT("/:id/approve", h.ApproveRequest)
		approvals.PUT("/:id/reject", h.RejectRequest)
		approvals.PUT("/:id/cancel", h.CancelRequest)
		approvals.POST("/:id/resubmit", h.ResubmitSuggestion)
	}
}

// ListApprovalRequests returns the approval requests visible to the caller
// @Summary      List approval requests
// @Description  Requests the caller raised or may decide; administrators see all.
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        approvalType   query     string  false  "CREATION, EDIT or DELETION"
// @Param        status         query     string  false  "PENDING, APPROVED or REJECTED"
// @Param        requestedBy    query     string  false  "Requester user ID"
// @Param        createdBy      query     string  false  "Machine creator user ID"
// @Param        dateFrom       query     string  false  "YYYY-MM-DD"
// @Param        dateTo         query     string  false  "YYYY-MM-DD"
// @Param        soNumber       query     string  false  "Sales order number"
// @Param        poNumber       query     string  false  "Purchase order number"
// @Param        sequence       query     string  false  "Machine sequence substring"
// @Param        categoryId     query     string  false  "Category ID"
// @Param        metadataKey    query     string  false  "Machine metadata key"
// @Param        metadataValue  query     string  false  "Machine metadata value"
// @Param        search         query     string  false  "Free text"
// @Param        page           query     int     false  "Page number (default 1)"
// @Param        limit          query     int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page{items=[]service.ApprovalRequestResponse}}
// @Failure      400  {object}  response.Response
// @Router       /api/approvals [get]
func (h *ApprovalHandler) ListApprovalRequests(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	filter := service.ApprovalListFilter{
		ApprovalType:  c.Query("approvalType"),
		Status:        c.Query("status"),
		RequestedBy:   c.Query("requestedBy"),
		CreatedBy:     c.Query("createdBy"),
		DateFrom:      c.Query("dateFrom"),
		DateTo:        c.Query("dateTo"),
		SoNumber:      c.Query("soNumber"),
		PoNumber:      c.Query("poNumber"),
		Sequence:      c.Query("sequence"),
		CategoryID:    c.Query("categoryId"),
		MetadataKey:   c.Query("metadataKey"),
		MetadataValue: c.Query("metadataValue"),
		Search:        c.Query("search"),
		Page:          p.Page,
		Limit:         p.Limit,
	}

	items, total, err := h.approvalService.ListApprovalRequests(c.Request.Context(), v, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, items, total, p.Page, p.Limit))
}

// GetApprovalRequest returns one approval request
// @Summary      Get approval request
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/approvals/{id} [get]
func (h *ApprovalHandler) GetApprovalRequest(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	res, err := h.approvalService.GetApprovalRequest(c.Request.Context(), v, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// CreateApprovalRequest opens a request against a machine
// @Summary      Create approval request
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateApprovalRequestDTO  true  "Request"
// @Success      201      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      423      {object}  response.Response
// @Router       /api/approvals [post]
func (h *ApprovalHandler) CreateApprovalRequest(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	var req service.CreateApprovalRequestDTO
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.approvalService.CreateApprovalRequest(c.Request.Context(), v, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.SuccessWithWarnings(http.StatusCreated, res.Request, res.Warnings))
}

// EditApprovalRequest lets the requester amend a pending request
// @Summary      Edit approval request
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                          true  "Request ID"
// @Param        payload  body      service.EditApprovalRequestDTO  true  "Fields to change"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id} [patch]
func (h *ApprovalHandler) EditApprovalRequest(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	var req service.EditApprovalRequestDTO
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.approvalService.EditApprovalRequest(c.Request.Context(), v, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ApproveRequest approves a pending approval request and applies its changes
// @Summary      Approve request
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true   "Request ID"
// @Param        payload  body      service.ApproveRequestDTO  false  "Approver notes"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/approve [put]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	var req service.ApproveRequestDTO
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	res, err := h.approvalService.ApproveRequest(c.Request.Context(), v, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithWarnings(http.StatusOK, res.Request, res.Warnings))
}

// RejectRequest rejects a pending approval request
// @Summary      Reject request
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Request ID"
// @Param        payload  body      service.RejectRequestDTO  true  "Reason (at least 10 characters) and optional suggested changes"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/reject [put]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	var req service.RejectRequestDTO
	if !bindJSON(c, &req) {
		return
	}
	if !approval.MeetsReasonLength(req.RejectionReason) {
		writeError(c, apperror.Newf(apperror.KindValidation,
			"rejection_reason must be at least %d characters", approval.MinRejectionReasonLength))
		return
	}
	res, err := h.approvalService.RejectRequest(c.Request.Context(), v, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// CancelRequest withdraws the caller's own pending request
// @Summary      Cancel request
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      403  {object}  response.Response
// @Router       /api/approvals/{id}/cancel [put]
func (h *ApprovalHandler) CancelRequest(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	res, err := h.approvalService.CancelRequest(c.Request.Context(), v, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ResubmitSuggestion opens a new request from a rejection's suggested changes
// @Summary      Resubmit suggested changes
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rejected request ID"
// @Success      201  {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/approvals/{id}/resubmit [post]
func (h *ApprovalHandler) ResubmitSuggestion(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	res, err := h.approvalService.ResubmitSuggestion(c.Request.Context(), v, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.SuccessWithWarnings(http.StatusCreated, res.Request, res.Warnings))
}
