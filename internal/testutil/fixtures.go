package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"dispatchconsole/internal/model"
)

// CreateUser inserts a user holding the given roles, creating roles as needed.
func CreateUser(t *testing.T, db *gorm.DB, username string, roles ...string) *model.User {
	t.Helper()

	user := &model.User{Username: username, Email: username + "@example.com"}
	for _, name := range roles {
		role := model.Role{Name: name}
		require.NoError(t, db.Where("name = ?", name).FirstOrCreate(&role).Error)
		user.Roles = append(user.Roles, role)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateCategory inserts a category with the given approver roles.
func CreateCategory(t *testing.T, db *gorm.DB, name string, approverRoles ...string) *model.Category {
	t.Helper()

	c := &model.Category{Name: name}
	c.SetApprovers(approverRoles)
	require.NoError(t, db.Create(c).Error)
	return c
}

func CreateSubcategory(t *testing.T, db *gorm.DB, categoryID uuid.UUID, name string) *model.Subcategory {
	t.Helper()

	s := &model.Subcategory{CategoryID: categoryID, Name: name}
	require.NoError(t, db.Create(s).Error)
	return s
}

// CreateSalesOrder inserts a sales order in the given scope; category may be nil.
func CreateSalesOrder(t *testing.T, db *gorm.DB, soNumber string, categoryID, subcategoryID *uuid.UUID) *model.SalesOrder {
	t.Helper()

	so := &model.SalesOrder{
		SoNumber:      soNumber,
		PoNumber:      "PO-" + soNumber,
		CustomerName:  "Acme",
		CategoryID:    categoryID,
		SubcategoryID: subcategoryID,
		OrderValue:    decimal.RequireFromString("1250.50"),
	}
	require.NoError(t, db.Create(so).Error)
	return so
}

// CreateMachine inserts a machine created by createdBy against soID.
func CreateMachine(t *testing.T, db *gorm.DB, soID *uuid.UUID, createdBy uuid.UUID, approved bool, sequence string) *model.Machine {
	t.Helper()

	m := &model.Machine{
		SoID:       soID,
		Location:   "Dock 1",
		Sequence:   sequence,
		IsApproved: approved,
		CreatedBy:  &createdBy,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

// ReloadMachine reads a machine back, including soft-deleted rows.
func ReloadMachine(t *testing.T, db *gorm.DB, id uuid.UUID) *model.Machine {
	t.Helper()

	var m model.Machine
	require.NoError(t, db.Unscoped().First(&m, "id = ?", id).Error)
	return &m
}

// ParseID parses a UUID string returned by a service response.
func ParseID(t *testing.T, s string) uuid.UUID {
	t.Helper()

	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
