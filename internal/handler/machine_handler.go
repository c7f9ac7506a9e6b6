package handler

import (
	"net/http"

	"dispatchconsole/internal/service"
	"dispatchconsole/pkg/pagination"
	"dispatchconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type MachineHandler struct {
	machineService service.MachineService
}

func NewMachineHandler(machineService service.MachineService) *MachineHandler {
	return &MachineHandler{machineService: machineService}
}

// RegisterRoutes expects an authenticated group.
func (h *MachineHandler) RegisterRoutes(router *gin.RouterGroup) {
	machines := router.Group("/machines")
	{
		machines.GET("", h.ListMachines)
		machines.GET("/:id", h.GetMachine)
		machines.POST("", h.CreateMachine)
		machines.POST("/:id/edit-requests", h.RequestEdit)
		machines.POST("/:id/deletion-requests", h.RequestDeletion)
		machines.PUT("/:id/sequence", h.OverrideSequence)
	}
}

// ListMachines lists machines
// @Summary      List machines
// @Tags         machines
// @Security     BearerAuth
// @Produce      json
// @Param        search      query     string  false  "Sequence or location substring"
// @Param        isApproved  query     bool    false  "Filter by approval state"
// @Param        mine        query     bool    false  "Only machines created by the caller"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page{items=[]service.MachineResponse}}
// @Router       /api/machines [get]
func (h *MachineHandler) ListMachines(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	items, total, err := h.machineService.ListMachines(c.Request.Context(), v, service.MachineListFilter{
		Search:     c.Query("search"),
		IsApproved: c.Query("isApproved"),
		Mine:       queryBool(c, "mine"),
		Page:       p.Page,
		Limit:      p.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, items, total, p.Page, p.Limit))
}

// GetMachine returns one machine
// @Summary      Get machine
// @Tags         machines
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response{data=service.MachineResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/machines/{id} [get]
func (h *MachineHandler) GetMachine(c *gin.Context) {
	res, err := h.machineService.GetMachine(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// CreateMachine registers an unapproved machine and opens its CREATION request
// @Summary      Create machine
// @Tags         machines
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateMachineRequest  true  "Machine"
// @Success      201      {object}  response.Response{data=service.MachineResult}
// @Failure      400      {object}  response.Response
// @Router       /api/machines [post]
func (h *MachineHandler) CreateMachine(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	var req service.CreateMachineRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.machineService.CreateMachine(c.Request.Context(), v, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.SuccessWithWarnings(http.StatusCreated, res, res.Warnings))
}

// RequestEdit opens an EDIT request for an unapproved machine
// @Summary      Request machine edit
// @Tags         machines
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Machine ID"
// @Param        payload  body      service.RequestEditDTO  true  "Proposed changes"
// @Success      201      {object}  response.Response{data=service.MachineResult}
// @Failure      409      {object}  response.Response
// @Failure      423      {object}  response.Response
// @Router       /api/machines/{id}/edit-requests [post]
func (h *MachineHandler) RequestEdit(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	var req service.RequestEditDTO
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.machineService.RequestEdit(c.Request.Context(), v, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// RequestDeletion opens a DELETION request
// @Summary      Request machine deletion
// @Tags         machines
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true   "Machine ID"
// @Param        payload  body      service.RequestDeletionDTO  false  "Reason"
// @Success      201      {object}  response.Response{data=service.MachineResult}
// @Failure      409      {object}  response.Response
// @Router       /api/machines/{id}/deletion-requests [post]
func (h *MachineHandler) RequestDeletion(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	var req service.RequestDeletionDTO
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	res, err := h.machineService.RequestDeletion(c.Request.Context(), v, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// OverrideSequence sets a sequence by hand and sends the machine back for approval
// @Summary      Override machine sequence
// @Tags         machines
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "Machine ID"
// @Param        payload  body      service.OverrideSequenceRequest  true  "New sequence"
// @Success      200      {object}  response.Response{data=service.MachineResult}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/machines/{id}/sequence [put]
func (h *MachineHandler) OverrideSequence(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}
	var req service.OverrideSequenceRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.machineService.OverrideSequence(c.Request.Context(), v, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithWarnings(http.StatusOK, res, res.Warnings))
}
