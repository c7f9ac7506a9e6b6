package repository

import (
	"context"
	"time"

	"dispatchconsole/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SequenceConfigRepository persists sequence configs. CurrentCounter only moves through
// IncrementCounter and ResetCounter.
type SequenceConfigRepository interface {
	Create(ctx context.Context, cfg *model.SequenceConfig) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SequenceConfig, error)
	// FindActive returns the active config for exactly (categoryID, subcategoryID);
	// a nil subcategory matches the category-wide config only.
	FindActive(ctx context.Context, categoryID uuid.UUID, subcategoryID *uuid.UUID) (*model.SequenceConfig, error)
	List(ctx context.Context, categoryID *uuid.UUID, includeInactive bool) ([]model.SequenceConfig, error)
	// Update writes template, prefix, active flag and starting number. The counter is never touched.
	Update(ctx context.Context, cfg *model.SequenceConfig) error
	// IncrementCounter atomically bumps the counter of an active config and returns the new
	// value. The result never falls below StartingNumber.
	IncrementCounter(ctx context.Context, id uuid.UUID) (int, error)
	// ResetCounter sets the counter so the next issued number is next.
	ResetCounter(ctx context.Context, id uuid.UUID, next int) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type sequenceConfigRepository struct {
	db *gorm.DB
}

func NewSequenceConfigRepository(db *gorm.DB) SequenceConfigRepository {
	return &sequenceConfigRepository{db: db}
}

func (r *sequenceConfigRepository) Create(ctx context.Context, cfg *model.SequenceConfig) error {
	return GetDB(ctx, r.db).Create(cfg).Error
}

func (r *sequenceConfigRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.SequenceConfig, error) {
	var cfg model.SequenceConfig
	err := GetDB(ctx, r.db).
		Preload("Category").
		Preload("Subcategory").
		First(&cfg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *sequenceConfigRepository) FindActive(ctx context.Context, categoryID uuid.UUID, subcategoryID *uuid.UUID) (*model.SequenceConfig, error) {
	var cfg model.SequenceConfig
	err := GetDB(ctx, r.db).
		Preload("Category").
		Preload("Subcategory").
		Where("active_scope = ?", model.ScopeKey(categoryID, subcategoryID)).
		First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *sequenceConfigRepository) List(ctx context.Context, categoryID *uuid.UUID, includeInactive bool) ([]model.SequenceConfig, error) {
	var configs []model.SequenceConfig
	q := GetDB(ctx, r.db).Preload("Category").Preload("Subcategory")
	if categoryID != nil {
		q = q.Where("category_id = ?", *categoryID)
	}
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	if err := q.Order("created_at ASC").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *sequenceConfigRepository) Update(ctx context.Context, cfg *model.SequenceConfig) error {
	cfg.UpdatedAt = time.Now()
	return GetDB(ctx, r.db).Model(cfg).
		Select("prefix", "template", "starting_number", "active", "active_scope", "updated_at").
		Updates(cfg).Error
}

func (r *sequenceConfigRepository) IncrementCounter(ctx context.Context, id uuid.UUID) (int, error) {
	db := GetDB(ctx, r.db)
	res := db.Model(&model.SequenceConfig{}).
		Where("id = ? AND active = ?", id, true).
		UpdateColumn("current_counter", gorm.Expr(
			"CASE WHEN current_counter + 1 < starting_number THEN starting_number ELSE current_counter + 1 END"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	var row struct{ CurrentCounter int }
	err := db.Model(&model.SequenceConfig{}).
		Select("current_counter").
		Where("id = ?", id).
		Scan(&row).Error
	return row.CurrentCounter, err
}

// ResetCounter stores next-1 as the counter so the following increment yields next.
func (r *sequenceConfigRepository) ResetCounter(ctx context.Context, id uuid.UUID, next int) error {
	res := GetDB(ctx, r.db).Model(&model.SequenceConfig{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"current_counter": next - 1,
			"starting_number": next,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *sequenceConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Delete(&model.SequenceConfig{}, "id = ?", id).Error
}
