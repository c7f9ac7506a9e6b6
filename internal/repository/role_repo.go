package repository

import (
	"context"

	"dispatchconsole/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*model.Role, error)
	FindOrCreate(ctx context.Context, role *model.Role) error
	ListAll(ctx context.Context) ([]model.Role, error)
	// IsMember reports whether userID holds the role named roleName.
	IsMember(ctx context.Context, roleName string, userID uuid.UUID) (bool, error)
	// HasAnyRole reports whether userID holds at least one of roleNames.
	HasAnyRole(ctx context.Context, roleNames []string, userID uuid.UUID) (bool, error)
	AddMember(ctx context.Context, roleID, userID uuid.UUID) error
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindOrCreate(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).
		Where("name = ?", role.Name).
		FirstOrCreate(role).Error
}

func (r *roleRepository) ListAll(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	if err := GetDB(ctx, r.db).Order("name asc").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) IsMember(ctx context.Context, roleName string, userID uuid.UUID) (bool, error) {
	return r.HasAnyRole(ctx, []string{roleName}, userID)
}

func (r *roleRepository) HasAnyRole(ctx context.Context, roleNames []string, userID uuid.UUID) (bool, error) {
	if len(roleNames) == 0 {
		return false, nil
	}
	var count int64
	err := GetDB(ctx, r.db).
		Table("user_roles").
		Joins("INNER JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ? AND roles.name IN ?", userID, roleNames).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *roleRepository) AddMember(ctx context.Context, roleID, userID uuid.UUID) error {
	return GetDB(ctx, r.db).Exec(
		"INSERT INTO user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT DO NOTHING", userID, roleID,
	).Error
}
