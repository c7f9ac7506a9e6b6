package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username    string   `json:"username" binding:"required"`
	Email       string   `json:"email" binding:"required,email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type UserResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	CreatedAt   string   `json:"created_at"`
}

// UserService manages console operators and their role memberships. Credentials are
// handled by the identity provider that fronts the console; IssueToken exists for
// operators and local tooling.
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	GetUser(ctx context.Context, id string) (*UserResponse, error)
	GetUserByUsername(ctx context.Context, username string) (*UserResponse, error)
	IssueToken(ctx context.Context, username string, ttl time.Duration) (*TokenResponse, error)
}

type userService struct {
	repo      repository.UserRepository
	roleRepo  repository.RoleRepository
	txManager repository.TransactionManager
	secret    []byte
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, roleRepo repository.RoleRepository, txManager repository.TransactionManager, jwtSecret string) UserService {
	return &userService{repo: repo, roleRepo: roleRepo, txManager: txManager, secret: []byte(jwtSecret)}
}

func mapToUserResponse(user *model.User) *UserResponse {
	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, r.Name)
	}
	return &UserResponse{
		ID:          user.ID.String(),
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Roles:       roles,
		CreatedAt:   user.CreatedAt.Format(timeLayout),
	}
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, apperror.Validation("username is required")
	}

	var userID string
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetByUsername(txCtx, username); err == nil {
			return apperror.Conflict("username already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check username: %w", err)
		}

		user := &model.User{
			Username:    username,
			Email:       strings.TrimSpace(req.Email),
			DisplayName: strings.TrimSpace(req.DisplayName),
		}
		if err := s.repo.Create(txCtx, user); err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("username or email already exists")
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		for _, name := range req.Roles {
			role, err := s.roleRepo.FindByName(txCtx, strings.TrimSpace(name))
			if err != nil {
				return notFoundOr(err, "role "+name)
			}
			if err := s.roleRepo.AddMember(txCtx, role.ID, user.ID); err != nil {
				return fmt.Errorf("failed to grant role '%s': %w", name, err)
			}
		}
		userID = user.ID.String()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

func (s *userService) GetUser(ctx context.Context, id string) (*UserResponse, error) {
	userID, err := parseID(id, "user id")
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	return mapToUserResponse(user), nil
}

func (s *userService) GetUserByUsername(ctx context.Context, username string) (*UserResponse, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	return mapToUserResponse(user), nil
}

// IssueToken signs a token carrying the user's id and current role names.
func (s *userService) IssueToken(ctx context.Context, username string, ttl time.Duration) (*TokenResponse, error) {
	if len(s.secret) == 0 {
		return nil, apperror.Validation("jwt secret is not configured")
	}
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	expires := time.Now().Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"roles": user.Roles,
		"exp":   expires.Unix(),
		"iat":   time.Now().Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &TokenResponse{Token: signed, ExpiresAt: expires.Format(time.RFC3339)}, nil
}
