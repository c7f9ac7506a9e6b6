package repository

import (
	"context"

	"dispatchconsole/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SalesOrderRepository interface {
	Create(ctx context.Context, so *model.SalesOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error)
	List(ctx context.Context, search string, offset, limit int) ([]model.SalesOrder, int64, error)
}

type salesOrderRepository struct {
	db *gorm.DB
}

func NewSalesOrderRepository(db *gorm.DB) SalesOrderRepository {
	return &salesOrderRepository{db: db}
}

func (r *salesOrderRepository) Create(ctx context.Context, so *model.SalesOrder) error {
	return GetDB(ctx, r.db).Create(so).Error
}

func (r *salesOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error) {
	var so model.SalesOrder
	err := GetDB(ctx, r.db).
		Preload("Category").
		Preload("Subcategory").
		First(&so, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &so, nil
}

func (r *salesOrderRepository) List(ctx context.Context, search string, offset, limit int) ([]model.SalesOrder, int64, error) {
	var orders []model.SalesOrder
	var total int64

	scoped := func(q *gorm.DB) *gorm.DB {
		if search != "" {
			like := "%" + search + "%"
			q = q.Where("LOWER(so_number) LIKE LOWER(?) OR LOWER(po_number) LIKE LOWER(?) OR LOWER(customer_name) LIKE LOWER(?)", like, like, like)
		}
		return q
	}

	db := GetDB(ctx, r.db)
	if err := scoped(db.Model(&model.SalesOrder{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := scoped(db.Preload("Category").Preload("Subcategory")).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
