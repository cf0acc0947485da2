package budgets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/angelmondragon/budgetdesk-backend/pkg/pagination"
)

// Repository reads budgets and applies guarded status transitions on carts.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a budgets repository bound to the provided database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type listBudgetsParams struct {
	Status *enums.CartStatus
	Limit  int
	Cursor *pagination.Cursor
}

func (r *Repository) WithTx(tx *gorm.DB) BudgetRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) withDetail(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("User").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("cart_items.created_at ASC, cart_items.id ASC")
		}).
		Preload("Items.Product")
}

// FindByID loads a cart in any status with its owner, items and products.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.withDetail(ctx).Where("id = ?", id).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *Repository) FindActiveCartID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Select("id").
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return uuid.Nil, err
	}
	return cart.ID, nil
}

// MarkSubmitted moves an active cart that has at least one line to submitted.
func (r *Repository) MarkSubmitted(ctx context.Context, cartID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, enums.CartStatusActive).
		Where("EXISTS (SELECT 1 FROM cart_items WHERE cart_items.cart_id = carts.id)").
		UpdateColumns(map[string]any{
			"status":       enums.CartStatusSubmitted,
			"submitted_at": at,
			"updated_at":   at,
		})
	return result.RowsAffected, result.Error
}

// MarkDecided moves a submitted budget to a terminal status.
func (r *Repository) MarkDecided(ctx context.Context, id uuid.UUID, to enums.CartStatus, actorID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND status = ?", id, enums.CartStatusSubmitted).
		UpdateColumns(map[string]any{
			"status":     to,
			"decided_at": at,
			"decided_by": actorID,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}

// List pages through every non-active cart, newest submission first.
func (r *Repository) List(ctx context.Context, params listBudgetsParams) ([]models.Cart, *pagination.Cursor, error) {
	query := r.withDetail(ctx).Model(&models.Cart{})
	if params.Status != nil {
		query = query.Where("carts.status = ?", *params.Status)
	} else {
		query = query.Where("carts.status IN ?", enums.BudgetStatuses())
	}

	var rows []models.Cart
	err := query.Scopes(pagination.Keyset("carts.submitted_at", "carts.id", params.Cursor, params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}

	page, next := pagination.Trim(rows, params.Limit, func(c models.Cart) pagination.Cursor {
		return pagination.Cursor{CreatedAt: submittedAt(c), ID: c.ID}
	})
	return page, next, nil
}

// ListByUser returns the user's non-active carts, newest submission first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Cart, error) {
	var rows []models.Cart
	err := r.withDetail(ctx).
		Where("carts.user_id = ? AND carts.status IN ?", userID, enums.BudgetStatuses()).
		Order("carts.submitted_at DESC, carts.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStale returns submitted budgets still pending since before submittedBefore.
func (r *Repository) ListStale(ctx context.Context, submittedBefore time.Time, limit int) ([]models.Cart, error) {
	var rows []models.Cart
	err := r.db.WithContext(ctx).
		Where("status = ? AND submitted_at < ?", enums.CartStatusSubmitted, submittedBefore).
		Order("submitted_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func submittedAt(c models.Cart) time.Time {
	if c.SubmittedAt != nil {
		return *c.SubmittedAt
	}
	return c.CreatedAt
}
