package service

import (
	"context"
	"fmt"

	"dispatchconsole/internal/logger"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/repository"

	"go.uber.org/zap"
)

// --- DTOs ---

type RoleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsSystem    bool   `json:"is_system"`
	CreatedAt   string `json:"created_at"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	// IsMember reports whether the user holds the named role.
	IsMember(ctx context.Context, roleName, userID string) (bool, error)
	SeedDefaultRoles(ctx context.Context) error
}

type roleService struct {
	repo repository.RoleRepository
}

func NewRoleService(repo repository.RoleRepository) RoleService {
	return &roleService{repo: repo}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) IsMember(ctx context.Context, roleName, userID string) (bool, error) {
	id, err := parseID(userID, "user id")
	if err != nil {
		return false, err
	}
	ok, err := s.repo.IsMember(ctx, roleName, id)
	if err != nil {
		return false, fmt.Errorf("failed to check role membership: %w", err)
	}
	return ok, nil
}

// SeedDefaultRoles creates the built-in roles if they are not already present.
func (s *roleService) SeedDefaultRoles(ctx context.Context) error {
	defaults := []model.Role{
		{Name: model.RoleAdmin, Description: "Full access, sees every approval request", IsSystem: true},
		{Name: model.RoleManager, Description: "Decides approval requests", IsSystem: true},
		{Name: model.RoleDispatcher, Description: "Creates and edits dispatch records", IsSystem: true},
	}
	for i := range defaults {
		if err := s.repo.FindOrCreate(ctx, &defaults[i]); err != nil {
			return fmt.Errorf("failed to seed role '%s': %w", defaults[i].Name, err)
		}
	}
	logger.Info("default roles seeded", zap.Int("count", len(defaults)))
	return nil
}

// --- Response mappers ---

func toRoleResponse(r model.Role) RoleResponse {
	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		CreatedAt:   r.CreatedAt.Format(timeLayout),
	}
}
