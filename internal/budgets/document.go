package budgets

import (
	"time"

	"github.com/angelmondragon/budgetdesk-backend/pkg/documents"
	"github.com/angelmondragon/budgetdesk-backend/pkg/exchangerate"
)

func buildDocument(b *BudgetDTO, company string, rate *exchangerate.Rate, now time.Time) documents.BudgetDocument {
	doc := documents.BudgetDocument{
		CompanyName: company,
		BudgetID:    b.ID,
		Status:      string(b.Status),
		SubmittedAt: b.SubmittedAt,
		DecidedAt:   b.DecidedAt,
		Total:       b.Total,
		GeneratedAt: now.UTC(),
	}
	if b.User != nil {
		doc.OwnerName = b.User.displayName()
		doc.OwnerEmail = b.User.Email
	}
	for _, item := range b.Items {
		line := documents.BudgetLine{
			Quantity: item.Quantity,
			Price:    item.Price,
			Subtotal: item.Subtotal,
		}
		if item.Product != nil {
			line.SKU = item.Product.SKU
			line.Name = item.Product.Name
			if item.Product.Brand != nil {
				line.Brand = *item.Product.Brand
			}
		}
		doc.Lines = append(doc.Lines, line)
	}
	if rate != nil {
		doc.Rate = &documents.RateLine{
			Currency: rate.Currency,
			Value:    rate.Value,
			Total:    rate.Convert(b.Total),
		}
	}
	return doc
}
