package cart

import (
	"time"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartDTO is the uniform view of a cart, whether active or already a budget.
type CartDTO struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"user_id"`
	Status      enums.CartStatus `json:"status"`
	Items       []ItemDTO        `json:"items"`
	ItemCount   int              `json:"item_count"`
	Total       decimal.Decimal  `json:"total"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	DecidedAt   *time.Time       `json:"decided_at,omitempty"`
	DecidedBy   *uuid.UUID       `json:"decided_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ItemDTO is a cart line. Price is the snapshot taken when the line was created.
type ItemDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Product   *ProductDTO     `json:"product,omitempty"`
}

// ProductDTO carries the catalog detail attached to a line.
type ProductDTO struct {
	ID           uuid.UUID           `json:"id"`
	SKU          string              `json:"sku"`
	Name         string              `json:"name"`
	Description  *string             `json:"description,omitempty"`
	Brand        *string             `json:"brand,omitempty"`
	Category     *string             `json:"category,omitempty"`
	CurrentPrice decimal.Decimal     `json:"current_price"`
	IsActive     bool                `json:"is_active"`
	Status       enums.ProductStatus `json:"status"`
}

// FromModel maps a cart with preloaded items into its DTO.
func FromModel(cart *models.Cart) *CartDTO {
	if cart == nil {
		return nil
	}
	items := ItemsFromModels(cart.Items)
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return &CartDTO{
		ID:          cart.ID,
		UserID:      cart.UserID,
		Status:      cart.Status,
		Items:       items,
		ItemCount:   len(items),
		Total:       total.Round(2),
		SubmittedAt: cart.SubmittedAt,
		DecidedAt:   cart.DecidedAt,
		DecidedBy:   cart.DecidedBy,
		CreatedAt:   cart.CreatedAt,
		UpdatedAt:   cart.UpdatedAt,
	}
}

// ItemsFromModels maps cart lines, never returning nil.
func ItemsFromModels(rows []models.CartItem) []ItemDTO {
	items := make([]ItemDTO, 0, len(rows))
	for _, row := range rows {
		item := ItemDTO{
			ID:        row.ID,
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			Price:     row.Price.Round(2),
			Subtotal:  row.Subtotal().Round(2),
		}
		if row.Product != nil {
			item.Product = &ProductDTO{
				ID:           row.Product.ID,
				SKU:          row.Product.SKU,
				Name:         row.Product.Name,
				Description:  row.Product.Description,
				Brand:        row.Product.Brand,
				Category:     row.Product.Category,
				CurrentPrice: row.Product.Price.Round(2),
				IsActive:     row.Product.IsActive,
				Status:       row.Product.Status,
			}
		}
		items = append(items, item)
	}
	return items
}
