package repository

import (
	"context"
	"time"

	"dispatchconsole/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CategoryRepository serves the category lookups sequences are rendered from.
type CategoryRepository interface {
	Create(ctx context.Context, category *model.Category) error
	CreateSubcategory(ctx context.Context, sub *model.Subcategory) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Category, error)
	FindSubcategory(ctx context.Context, id uuid.UUID) (*model.Subcategory, error)
	List(ctx context.Context) ([]model.Category, error)
	UpdateApprovers(ctx context.Context, id uuid.UUID, roles datatypes.JSON) error
}

type categoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) Create(ctx context.Context, category *model.Category) error {
	return GetDB(ctx, r.db).Create(category).Error
}

func (r *categoryRepository) CreateSubcategory(ctx context.Context, sub *model.Subcategory) error {
	return GetDB(ctx, r.db).Create(sub).Error
}

func (r *categoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	var category model.Category
	if err := GetDB(ctx, r.db).First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) FindSubcategory(ctx context.Context, id uuid.UUID) (*model.Subcategory, error) {
	var sub model.Subcategory
	if err := GetDB(ctx, r.db).First(&sub, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *categoryRepository) List(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	err := GetDB(ctx, r.db).
		Preload("Subcategories", func(db *gorm.DB) *gorm.DB { return db.Order("name asc") }).
		Order("name asc").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *categoryRepository) UpdateApprovers(ctx context.Context, id uuid.UUID, roles datatypes.JSON) error {
	res := GetDB(ctx, r.db).Model(&model.Category{}).Where("id = ?", id).
		Updates(map[string]interface{}{"approver_roles": roles, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
