package handler

import (
	"net/http"

	"dispatchconsole/internal/service"
	"dispatchconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
}

func NewRoleHandler(roleService service.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

// RegisterRoutes expects an authenticated group.
func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/roles", h.ListRoles)
}

// ListRoles returns all roles that can be named as approvers
// @Summary      List roles
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.RoleResponse}
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roleService.ListRoles(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, roles))
}
