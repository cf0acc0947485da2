package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
)

// Product is a catalog entry. The catalog service owns writes; this service only reads.
type Product struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SKU         string              `gorm:"column:sku;not null"`
	Name        string              `gorm:"column:name;not null"`
	Description *string             `gorm:"column:description"`
	Brand       *string             `gorm:"column:brand"`
	Category    *string             `gorm:"column:category"`
	Price       decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	IsActive    bool                `gorm:"column:is_active;not null;default:true"`
	Status      enums.ProductStatus `gorm:"column:status;type:product_status;not null;default:'disponible'"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// Orderable reports whether the product may be added to a cart.
func (p Product) Orderable() bool {
	return p.IsActive && p.Status.Orderable()
}
