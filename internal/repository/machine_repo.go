package repository

import (
	"context"
	"time"

	"dispatchconsole/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MachineFilter narrows a machine listing.
type MachineFilter struct {
	Search     string
	IsApproved *bool
	CreatedBy  *uuid.UUID
	Offset     int
	Limit      int
}

type MachineRepository interface {
	Create(ctx context.Context, m *model.Machine) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Machine, error)
	// FindByIDForUpdate loads the machine with its sales order scope and locks the row.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Machine, error)
	Update(ctx context.Context, m *model.Machine) error
	SetApproved(ctx context.Context, id uuid.UUID, approved bool) error
	SetSequence(ctx context.Context, id uuid.UUID, sequence string, number *int, configID *uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter MachineFilter) ([]model.Machine, int64, error)
	ListBySequenceConfig(ctx context.Context, configID uuid.UUID) ([]model.Machine, error)
	// ListSequencedInScope returns machines carrying a sequence whose sales order is in
	// categoryID, narrowed to subcategoryID when it is set.
	ListSequencedInScope(ctx context.Context, categoryID uuid.UUID, subcategoryID *uuid.UUID) ([]model.Machine, error)
	CountBySequenceConfig(ctx context.Context, configID uuid.UUID) (int64, error)
}

type machineRepository struct {
	db *gorm.DB
}

func NewMachineRepository(db *gorm.DB) MachineRepository {
	return &machineRepository{db: db}
}

func withScope(db *gorm.DB) *gorm.DB {
	return db.Preload("SalesOrder").Preload("SalesOrder.Category").Preload("SalesOrder.Subcategory")
}

// lockForUpdate adds SELECT ... FOR UPDATE on dialects with row locks. SQLite
// serialises writers on its own.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *machineRepository) Create(ctx context.Context, m *model.Machine) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(m).Error
}

func (r *machineRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Machine, error) {
	var m model.Machine
	if err := withScope(GetDB(ctx, r.db)).Preload("Creator").First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *machineRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Machine, error) {
	var m model.Machine
	err := withScope(lockForUpdate(GetDB(ctx, r.db))).First(&m, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *machineRepository) Update(ctx context.Context, m *model.Machine) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(m).Error
}

func (r *machineRepository) SetApproved(ctx context.Context, id uuid.UUID, approved bool) error {
	return GetDB(ctx, r.db).Model(&model.Machine{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_approved": approved, "updated_at": time.Now()}).Error
}

func (r *machineRepository) SetSequence(ctx context.Context, id uuid.UUID, sequence string, number *int, configID *uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Machine{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"machine_sequence":   sequence,
			"sequence_number":    number,
			"sequence_config_id": configID,
			"updated_at":         time.Now(),
		}).Error
}

func (r *machineRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Machine{}).Error
}

func (r *machineRepository) List(ctx context.Context, filter MachineFilter) ([]model.Machine, int64, error) {
	var machines []model.Machine
	var total int64

	scoped := func(q *gorm.DB) *gorm.DB {
		if filter.Search != "" {
			like := "%" + filter.Search + "%"
			q = q.Where("LOWER(machine_sequence) LIKE LOWER(?) OR LOWER(location) LIKE LOWER(?)", like, like)
		}
		if filter.IsApproved != nil {
			q = q.Where("is_approved = ?", *filter.IsApproved)
		}
		if filter.CreatedBy != nil {
			q = q.Where("created_by = ?", *filter.CreatedBy)
		}
		return q
	}

	db := GetDB(ctx, r.db)
	if err := scoped(db.Model(&model.Machine{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := scoped(withScope(db)).Order("created_at DESC").Offset(filter.Offset).Limit(filter.Limit).Find(&machines).Error; err != nil {
		return nil, 0, err
	}
	return machines, total, nil
}

func (r *machineRepository) ListBySequenceConfig(ctx context.Context, configID uuid.UUID) ([]model.Machine, error) {
	var machines []model.Machine
	err := withScope(GetDB(ctx, r.db)).
		Where("sequence_config_id = ?", configID).
		Order("created_at ASC").
		Find(&machines).Error
	if err != nil {
		return nil, err
	}
	return machines, nil
}

func (r *machineRepository) ListSequencedInScope(ctx context.Context, categoryID uuid.UUID, subcategoryID *uuid.UUID) ([]model.Machine, error) {
	var machines []model.Machine
	q := withScope(GetDB(ctx, r.db)).
		Joins("JOIN sales_orders ON sales_orders.id = machines.so_id").
		Where("sales_orders.category_id = ?", categoryID).
		Where("machines.machine_sequence <> ''")
	if subcategoryID != nil {
		q = q.Where("sales_orders.subcategory_id = ?", *subcategoryID)
	}
	if err := q.Order("machines.created_at ASC").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

func (r *machineRepository) CountBySequenceConfig(ctx context.Context, configID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Unscoped().Model(&model.Machine{}).
		Where("sequence_config_id = ?", configID).
		Count(&count).Error
	return count, err
}
