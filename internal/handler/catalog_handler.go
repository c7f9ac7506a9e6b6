package handler

import (
	"net/http"

	"dispatchconsole/internal/middleware"
	"dispatchconsole/internal/service"
	"dispatchconsole/pkg/pagination"
	"dispatchconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalogService service.CatalogService
	adminRole      string
}

func NewCatalogHandler(catalogService service.CatalogService, adminRole string) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService, adminRole: adminRole}
}

// RegisterRoutes expects an authenticated group.
func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	categories := router.Group("/categories")
	{
		categories.GET("", h.ListCategories)
		categories.POST("", middleware.RequireRole(h.adminRole), h.CreateCategory)
		categories.PUT("/:id/approvers", middleware.RequireRole(h.adminRole), h.UpdateCategoryApprovers)
		categories.POST("/:id/subcategories", middleware.RequireRole(h.adminRole), h.CreateSubcategory)
	}

	orders := router.Group("/sales-orders")
	{
		orders.GET("", h.ListSalesOrders)
		orders.GET("/:id", h.GetSalesOrder)
		orders.POST("", h.CreateSalesOrder)
	}
}

// ListCategories returns categories with their subcategories
// @Summary      List categories
// @Tags         catalog
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.CategoryResponse}
// @Router       /api/categories [get]
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	res, err := h.catalogService.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// CreateCategory creates a category
// @Summary      Create category
// @Tags         catalog
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateCategoryRequest  true  "Category"
// @Success      201      {object}  response.Response{data=service.CategoryResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/categories [post]
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req service.CreateCategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.catalogService.CreateCategory(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// UpdateCategoryApprovers replaces the roles that approve machines in a category
// @Summary      Update category approvers
// @Tags         catalog
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                                 true  "Category ID"
// @Param        payload  body      service.UpdateCategoryApproversRequest  true  "Approver roles"
// @Success      200      {object}  response.Response{data=service.CategoryResponse}
// @Router       /api/categories/{id}/approvers [put]
func (h *CatalogHandler) UpdateCategoryApprovers(c *gin.Context) {
	var req service.UpdateCategoryApproversRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.catalogService.UpdateCategoryApprovers(c.Request.Context(), c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// CreateSubcategory adds a subcategory to a category
// @Summary      Create subcategory
// @Tags         catalog
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                            true  "Category ID"
// @Param        payload  body      service.CreateSubcategoryRequest  true  "Subcategory"
// @Success      201      {object}  response.Response{data=service.SubcategoryResponse}
// @Router       /api/categories/{id}/subcategories [post]
func (h *CatalogHandler) CreateSubcategory(c *gin.Context) {
	var req service.CreateSubcategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.catalogService.CreateSubcategory(c.Request.Context(), c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// ListSalesOrders lists sales orders
// @Summary      List sales orders
// @Tags         catalog
// @Security     BearerAuth
// @Produce      json
// @Param        search  query     string  false  "SO/PO number or customer substring"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page{items=[]service.SalesOrderResponse}}
// @Router       /api/sales-orders [get]
func (h *CatalogHandler) ListSalesOrders(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.catalogService.ListSalesOrders(c.Request.Context(), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, items, total, p.Page, p.Limit))
}

// GetSalesOrder returns one sales order
// @Summary      Get sales order
// @Tags         catalog
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Sales order ID"
// @Success      200  {object}  response.Response{data=service.SalesOrderResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/sales-orders/{id} [get]
func (h *CatalogHandler) GetSalesOrder(c *gin.Context) {
	res, err := h.catalogService.GetSalesOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// CreateSalesOrder registers a sales order machines can be dispatched against
// @Summary      Create sales order
// @Tags         catalog
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateSalesOrderRequest  true  "Sales order"
// @Success      201      {object}  response.Response{data=service.SalesOrderResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/sales-orders [post]
func (h *CatalogHandler) CreateSalesOrder(c *gin.Context) {
	var req service.CreateSalesOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.catalogService.CreateSalesOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}
