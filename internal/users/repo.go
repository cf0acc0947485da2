// Package users reads the identity records budget effects need. Rows are
// owned and written by the identity service.
package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID wraps gorm.ErrRecordNotFound when no user has id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(user).Error; err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return user, nil
}

// ListPrivileged returns the active admins and devs who review budgets,
// oldest account first.
func (r *Repository) ListPrivileged(ctx context.Context) ([]models.User, error) {
	var reviewers []models.User
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("role IN ?", enums.PrivilegedRoles).
		Order("created_at, id").
		Find(&reviewers).Error
	return reviewers, err
}
