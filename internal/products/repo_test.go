package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
)

func TestFindByID(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)

	product := models.Product{
		ID:       uuid.New(),
		SKU:      "SKU-5",
		Name:     "Taladro",
		Price:    decimal.RequireFromString("10.50"),
		IsActive: true,
		Status:   enums.ProductStatusOutOfStock,
	}
	require.NoError(t, db.Create(&product).Error)

	got, err := repo.FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("10.5")))
	assert.False(t, got.Orderable())

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
