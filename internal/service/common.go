package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const timeLayout = "2006-01-02 15:04:05"

// Viewer is the caller of an operation: who they are and which roles they hold.
// Roles come from the authenticated session and are opaque to the services.
type Viewer struct {
	UserID uuid.UUID
	Roles  []string
}

// HasRole reports whether the viewer holds role.
func (v Viewer) HasRole(role string) bool {
	for _, r := range v.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func parseID(value, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, apperror.Validation(fmt.Sprintf("invalid %s", field))
	}
	return id, nil
}

func parseOptionalID(value *string, field string) (*uuid.UUID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	id, err := parseID(*value, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// notFoundOr maps gorm.ErrRecordNotFound to a NotFound error and wraps anything else.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(what + " not found")
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// isUniqueViolation recognises unique constraint failures from PostgreSQL and SQLite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// writeAudit records an audit entry through the repository, joining the transaction in ctx.
func writeAudit(ctx context.Context, repo repository.AuditRepository, userID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	entry := &model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    data,
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
