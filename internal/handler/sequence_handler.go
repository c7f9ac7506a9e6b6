package handler

import (
	"net/http"

	"dispatchconsole/internal/middleware"
	"dispatchconsole/internal/service"
	"dispatchconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type SequenceHandler struct {
	sequenceService service.SequenceService
	adminRole       string
}

func NewSequenceHandler(sequenceService service.SequenceService, adminRole string) *SequenceHandler {
	return &SequenceHandler{sequenceService: sequenceService, adminRole: adminRole}
}

// RegisterRoutes expects an authenticated group.
func (h *SequenceHandler) RegisterRoutes(router *gin.RouterGroup) {
	configs := router.Group("/sequence-configs")
	{
		configs.GET("", h.ListConfigs)
		configs.GET("/:id", h.GetConfig)
		configs.POST("", middleware.RequireRole(h.adminRole), h.CreateConfig)
		configs.PUT("/:id", middleware.RequireRole(h.adminRole), h.UpdateConfig)
		configs.POST("/:id/reset", middleware.RequireRole(h.adminRole), h.ResetSequence)
		configs.DELETE("/:id", middleware.RequireRole(h.adminRole), h.DeleteConfig)
	}

	sequences := router.Group("/sequences")
	{
		sequences.POST("/generate", h.GenerateSequence)
		sequences.POST("/validate", h.ValidateSequence)
	}
}

// ListConfigs lists sequence configs, optionally for one category
// @Summary      List sequence configs
// @Tags         sequences
// @Security     BearerAuth
// @Produce      json
// @Param        category_id       query     string  false  "Category ID"
// @Param        include_inactive  query     bool    false  "Include disabled configs"
// @Success      200  {object}  response.Response{data=[]service.SequenceConfigResponse}
// @Router       /api/sequence-configs [get]
func (h *SequenceHandler) ListConfigs(c *gin.Context) {
	configs, err := h.sequenceService.ListConfigs(c.Request.Context(), c.Query("category_id"), queryBool(c, "include_inactive"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, configs))
}

// GetConfig returns one sequence config with a rendered preview
// @Summary      Get sequence config
// @Tags         sequences
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Config ID"
// @Success      200  {object}  response.Response{data=service.SequenceConfigResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/sequence-configs/{id} [get]
func (h *SequenceHandler) GetConfig(c *gin.Context) {
	cfg, err := h.sequenceService.GetConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, cfg))
}

// CreateConfig registers the active sequence config for a category or subcategory
// @Summary      Create sequence config
// @Tags         sequences
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateSequenceConfigRequest  true  "Config"
// @Success      201      {object}  response.Response{data=service.SequenceConfigResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/sequence-configs [post]
func (h *SequenceHandler) CreateConfig(c *gin.Context) {
	var req service.CreateSequenceConfigRequest
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := h.sequenceService.CreateConfig(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, cfg))
}

// UpdateConfig changes a config; update_existing re-renders machines already numbered
// @Summary      Update sequence config
// @Tags         sequences
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                               true  "Config ID"
// @Param        payload  body      service.UpdateSequenceConfigRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=service.UpdateSequenceConfigResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/sequence-configs/{id} [put]
func (h *SequenceHandler) UpdateConfig(c *gin.Context) {
	var req service.UpdateSequenceConfigRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sequenceService.UpdateConfig(c.Request.Context(), c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	var warnings []string
	if res.Revalidation != nil && len(res.Revalidation.Unresolved) > 0 {
		warnings = append(warnings, "some existing sequences could not be re-rendered")
	}
	c.JSON(http.StatusOK, response.SuccessWithWarnings(http.StatusOK, res, warnings))
}

// ResetSequence restarts numbering for a config; starting_number is the next number issued
// @Summary      Reset sequence counter
// @Description  starting_number becomes the next number issued; a warning is returned when it is at or below the current counter
// @Tags         sequences
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Config ID"
// @Param        payload  body      service.ResetSequenceRequest  true  "New starting number"
// @Success      200      {object}  response.Response{data=service.ResetSequenceResponse}
// @Router       /api/sequence-configs/{id}/reset [post]
func (h *SequenceHandler) ResetSequence(c *gin.Context) {
	var req service.ResetSequenceRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sequenceService.ResetSequence(c.Request.Context(), c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	var warnings []string
	if res.Warning != "" {
		warnings = []string{res.Warning}
	}
	c.JSON(http.StatusOK, response.SuccessWithWarnings(http.StatusOK, res, warnings))
}

// DeleteConfig deletes an unreferenced config or disables a referenced one
// @Summary      Delete sequence config
// @Tags         sequences
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Config ID"
// @Success      200  {object}  response.Response{data=service.DeleteSequenceConfigResponse}
// @Router       /api/sequence-configs/{id} [delete]
func (h *SequenceHandler) DeleteConfig(c *gin.Context) {
	res, err := h.sequenceService.DeleteConfig(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GenerateSequence draws the next sequence for a category and optional subcategory
// @Summary      Generate sequence
// @Tags         sequences
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.GenerateSequenceRequest  true  "Scope"
// @Success      200      {object}  response.Response{data=service.GeneratedSequenceResponse}
// @Failure      404      {object}  response.Response
// @Router       /api/sequences/generate [post]
func (h *SequenceHandler) GenerateSequence(c *gin.Context) {
	var req service.GenerateSequenceRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sequenceService.GenerateSequence(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ValidateSequence checks a candidate against the current and legacy schemes
// @Summary      Validate sequence
// @Tags         sequences
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ValidateSequenceRequest  true  "Candidate"
// @Success      200      {object}  response.Response{data=service.SequenceValidationResponse}
// @Router       /api/sequences/validate [post]
func (h *SequenceHandler) ValidateSequence(c *gin.Context) {
	var req service.ValidateSequenceRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sequenceService.ValidateSequence(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
