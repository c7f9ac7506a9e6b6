package service

import (
	"context"
	"fmt"
	"strings"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/approval"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/repository"
	"dispatchconsole/pkg/pagination"

	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateCategoryRequest struct {
	Name          string   `json:"name" binding:"required"`
	ApproverRoles []string `json:"approver_roles"`
}

type UpdateCategoryApproversRequest struct {
	ApproverRoles []string `json:"approver_roles"`
}

type CreateSubcategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateSalesOrderRequest struct {
	SoNumber      string          `json:"so_number" binding:"required"`
	PoNumber      string          `json:"po_number"`
	CustomerName  string          `json:"customer_name"`
	CategoryID    *string         `json:"category_id"`
	SubcategoryID *string         `json:"subcategory_id"`
	OrderValue    decimal.Decimal `json:"order_value" swaggertype:"string"`
}

type SubcategoryResponse struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
}

type CategoryResponse struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	ApproverRoles []string              `json:"approver_roles"`
	Subcategories []SubcategoryResponse `json:"subcategories"`
	CreatedAt     string                `json:"created_at"`
}

type SalesOrderResponse struct {
	ID              string          `json:"id"`
	SoNumber        string          `json:"so_number"`
	PoNumber        string          `json:"po_number"`
	CustomerName    string          `json:"customer_name"`
	CategoryID      *string         `json:"category_id"`
	CategoryName    string          `json:"category_name,omitempty"`
	SubcategoryID   *string         `json:"subcategory_id"`
	SubcategoryName string          `json:"subcategory_name,omitempty"`
	OrderValue      decimal.Decimal `json:"order_value" swaggertype:"string"`
	CreatedAt       string          `json:"created_at"`
}

// --- Interface ---

// CatalogService manages the categories, subcategories and sales orders that give
// machines their sequence scope and approver set.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]CategoryResponse, error)
	CreateCategory(ctx context.Context, userID string, req CreateCategoryRequest) (*CategoryResponse, error)
	UpdateCategoryApprovers(ctx context.Context, userID, id string, req UpdateCategoryApproversRequest) (*CategoryResponse, error)
	CreateSubcategory(ctx context.Context, userID, categoryID string, req CreateSubcategoryRequest) (*SubcategoryResponse, error)

	CreateSalesOrder(ctx context.Context, req CreateSalesOrderRequest) (*SalesOrderResponse, error)
	GetSalesOrder(ctx context.Context, id string) (*SalesOrderResponse, error)
	ListSalesOrders(ctx context.Context, search string, page, limit int) ([]SalesOrderResponse, int64, error)
}

// --- Implementation ---

type catalogService struct {
	categoryRepo   repository.CategoryRepository
	salesOrderRepo repository.SalesOrderRepository
	auditRepo      repository.AuditRepository
	txManager      repository.TransactionManager
}

func NewCatalogService(
	categoryRepo repository.CategoryRepository,
	salesOrderRepo repository.SalesOrderRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) CatalogService {
	return &catalogService{
		categoryRepo:   categoryRepo,
		salesOrderRepo: salesOrderRepo,
		auditRepo:      auditRepo,
		txManager:      txManager,
	}
}

func (s *catalogService) ListCategories(ctx context.Context) ([]CategoryResponse, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	res := make([]CategoryResponse, 0, len(categories))
	for _, c := range categories {
		res = append(res, toCategoryResponse(c))
	}
	return res, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, userID string, req CreateCategoryRequest) (*CategoryResponse, error) {
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("category name is required")
	}

	category := &model.Category{Name: name}
	category.SetApprovers(approval.NormalizeRoles(req.ApproverRoles))

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.categoryRepo.Create(txCtx, category); err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("category name already exists")
			}
			return fmt.Errorf("failed to create category: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, &actor, model.ActionCreateCategory, category.ID.String(), category.Name, map[string]interface{}{
			"approver_roles": category.Approvers(),
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toCategoryResponse(*category)
	return &resp, nil
}

func (s *catalogService) UpdateCategoryApprovers(ctx context.Context, userID, id string, req UpdateCategoryApproversRequest) (*CategoryResponse, error) {
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	categoryID, err := parseID(id, "category id")
	if err != nil {
		return nil, err
	}

	roles := approval.NormalizeRoles(req.ApproverRoles)
	var updated *model.Category
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var c model.Category
		c.SetApprovers(roles)
		if err := s.categoryRepo.UpdateApprovers(txCtx, categoryID, c.ApproverRoles); err != nil {
			return notFoundOr(err, "category")
		}
		if updated, err = s.categoryRepo.FindByID(txCtx, categoryID); err != nil {
			return notFoundOr(err, "category")
		}
		return writeAudit(txCtx, s.auditRepo, &actor, model.ActionUpdateCategoryApprovers, categoryID.String(), updated.Name, map[string]interface{}{
			"approver_roles": roles,
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toCategoryResponse(*updated)
	return &resp, nil
}

func (s *catalogService) CreateSubcategory(ctx context.Context, userID, categoryID string, req CreateSubcategoryRequest) (*SubcategoryResponse, error) {
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	catID, err := parseID(categoryID, "category id")
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("subcategory name is required")
	}

	sub := &model.Subcategory{CategoryID: catID, Name: name}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.categoryRepo.FindByID(txCtx, catID); err != nil {
			return notFoundOr(err, "category")
		}
		if err := s.categoryRepo.CreateSubcategory(txCtx, sub); err != nil {
			return fmt.Errorf("failed to create subcategory: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, &actor, model.ActionCreateSubcategory, sub.ID.String(), sub.Name, map[string]interface{}{
			"category_id": catID.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toSubcategoryResponse(*sub)
	return &resp, nil
}

func (s *catalogService) CreateSalesOrder(ctx context.Context, req CreateSalesOrderRequest) (*SalesOrderResponse, error) {
	soNumber := strings.TrimSpace(req.SoNumber)
	if soNumber == "" {
		return nil, apperror.Validation("so_number is required")
	}
	if req.OrderValue.IsNegative() {
		return nil, apperror.Validation("order_value must not be negative")
	}
	categoryID, err := parseOptionalID(req.CategoryID, "category_id")
	if err != nil {
		return nil, err
	}
	subcategoryID, err := parseOptionalID(req.SubcategoryID, "subcategory_id")
	if err != nil {
		return nil, err
	}
	if subcategoryID != nil && categoryID == nil {
		return nil, apperror.Validation("subcategory_id requires category_id")
	}

	so := &model.SalesOrder{
		SoNumber:      soNumber,
		PoNumber:      strings.TrimSpace(req.PoNumber),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CategoryID:    categoryID,
		SubcategoryID: subcategoryID,
		OrderValue:    req.OrderValue,
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if categoryID != nil {
			if _, err := s.categoryRepo.FindByID(txCtx, *categoryID); err != nil {
				return notFoundOr(err, "category")
			}
		}
		if subcategoryID != nil {
			sub, err := s.categoryRepo.FindSubcategory(txCtx, *subcategoryID)
			if err != nil {
				return notFoundOr(err, "subcategory")
			}
			if sub.CategoryID != *categoryID {
				return apperror.Validation("subcategory does not belong to category")
			}
		}
		if err := s.salesOrderRepo.Create(txCtx, so); err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("so_number already exists")
			}
			return fmt.Errorf("failed to create sales order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSalesOrder(ctx, so.ID.String())
}

func (s *catalogService) GetSalesOrder(ctx context.Context, id string) (*SalesOrderResponse, error) {
	soID, err := parseID(id, "sales order id")
	if err != nil {
		return nil, err
	}
	so, err := s.salesOrderRepo.FindByID(ctx, soID)
	if err != nil {
		return nil, notFoundOr(err, "sales order")
	}
	resp := toSalesOrderResponse(*so)
	return &resp, nil
}

func (s *catalogService) ListSalesOrders(ctx context.Context, search string, page, limit int) ([]SalesOrderResponse, int64, error) {
	p := pagination.Normalize(page, limit)
	orders, total, err := s.salesOrderRepo.List(ctx, strings.TrimSpace(search), p.Offset(), p.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch sales orders: %w", err)
	}
	res := make([]SalesOrderResponse, 0, len(orders))
	for _, so := range orders {
		res = append(res, toSalesOrderResponse(so))
	}
	return res, total, nil
}

// --- Response mappers ---

func toCategoryResponse(c model.Category) CategoryResponse {
	roles := c.Approvers()
	if roles == nil {
		roles = []string{}
	}
	subs := make([]SubcategoryResponse, 0, len(c.Subcategories))
	for _, sub := range c.Subcategories {
		subs = append(subs, toSubcategoryResponse(sub))
	}
	return CategoryResponse{
		ID:            c.ID.String(),
		Name:          c.Name,
		ApproverRoles: roles,
		Subcategories: subs,
		CreatedAt:     c.CreatedAt.Format(timeLayout),
	}
}

func toSubcategoryResponse(s model.Subcategory) SubcategoryResponse {
	return SubcategoryResponse{ID: s.ID.String(), CategoryID: s.CategoryID.String(), Name: s.Name}
}

func toSalesOrderResponse(so model.SalesOrder) SalesOrderResponse {
	resp := SalesOrderResponse{
		ID:            so.ID.String(),
		SoNumber:      so.SoNumber,
		PoNumber:      so.PoNumber,
		CustomerName:  so.CustomerName,
		CategoryID:    uuidPtrString(so.CategoryID),
		SubcategoryID: uuidPtrString(so.SubcategoryID),
		OrderValue:    so.OrderValue,
		CreatedAt:     so.CreatedAt.Format(timeLayout),
	}
	if so.Category != nil {
		resp.CategoryName = so.Category.Name
	}
	if so.Subcategory != nil {
		resp.SubcategoryName = so.Subcategory.Name
	}
	return resp
}
