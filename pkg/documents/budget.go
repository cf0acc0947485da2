// Package documents renders budget documents to HTML and PDF.
package documents

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:embed templates/budget.html.tmpl
var templateFS embed.FS

var budgetTemplate = template.Must(template.New("budget.html.tmpl").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
}).ParseFS(templateFS, "templates/budget.html.tmpl"))

// BudgetLine is one printed row.
type BudgetLine struct {
	SKU      string
	Name     string
	Brand    string
	Quantity int
	Price    decimal.Decimal
	Subtotal decimal.Decimal
}

// RateLine is the optional converted total.
type RateLine struct {
	Currency string
	Value    decimal.Decimal
	Total    decimal.Decimal
}

// BudgetDocument is everything printed on a budget PDF.
type BudgetDocument struct {
	CompanyName string
	BudgetID    uuid.UUID
	Status      string
	OwnerName   string
	OwnerEmail  string
	SubmittedAt *time.Time
	DecidedAt   *time.Time
	Lines       []BudgetLine
	Total       decimal.Decimal
	Rate        *RateLine
	GeneratedAt time.Time
}

// Renderer turns an HTML document into PDF bytes.
type Renderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// Generator builds budget PDFs from the embedded template.
type Generator struct {
	renderer Renderer
}

func NewGenerator(renderer Renderer) (*Generator, error) {
	if renderer == nil {
		return nil, errors.New("pdf renderer required")
	}
	return &Generator{renderer: renderer}, nil
}

// BudgetHTML executes the budget template.
func BudgetHTML(doc BudgetDocument) (string, error) {
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now().UTC()
	}
	var buf bytes.Buffer
	if err := budgetTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render budget template: %w", err)
	}
	return buf.String(), nil
}

// BudgetPDF renders doc to PDF.
func (g *Generator) BudgetPDF(ctx context.Context, doc BudgetDocument) ([]byte, error) {
	html, err := BudgetHTML(doc)
	if err != nil {
		return nil, err
	}
	pdf, err := g.renderer.RenderPDF(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render budget pdf: %w", err)
	}
	return pdf, nil
}

// Filename is the attachment name used for a budget.
func Filename(budgetID uuid.UUID) string {
	return fmt.Sprintf("budget-%s.pdf", budgetID.String()[:8])
}
