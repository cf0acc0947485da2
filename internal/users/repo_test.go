package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
)

func insertUser(t *testing.T, db *gorm.DB, email string, role enums.UserRole, active bool) models.User {
	t.Helper()
	user := models.User{ID: uuid.New(), Email: email, FirstName: "Ana", LastName: "Paz", Role: role, IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	if !active {
		require.NoError(t, db.Model(&user).Update("is_active", false).Error)
	}
	return user
}

func TestListPrivilegedReturnsActiveAdminsAndDevs(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)

	admin := insertUser(t, db, "admin@example.com", enums.UserRoleAdmin, true)
	dev := insertUser(t, db, "dev@example.com", enums.UserRoleDev, true)
	insertUser(t, db, "user@example.com", enums.UserRoleUser, true)
	insertUser(t, db, "former@example.com", enums.UserRoleAdmin, false)

	users, err := repo.ListPrivileged(context.Background())
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{admin.ID, dev.ID}, ids)
}

func TestFindByID(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	user := insertUser(t, db, "someone@example.com", enums.UserRoleUser, true)

	got, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "someone@example.com", got.Email)
	assert.Equal(t, "Ana Paz", got.FullName())

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
