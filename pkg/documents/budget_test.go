package documents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	html string
	err  error
}

func (f *fakeRenderer) RenderPDF(_ context.Context, html string) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-fake"), nil
}

func sampleDocument() BudgetDocument {
	submitted := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return BudgetDocument{
		CompanyName: "BudgetDesk",
		BudgetID:    uuid.MustParse("5b8e7a4c-1f3d-4a8e-9c2b-0d1e2f3a4b5c"),
		Status:      "submitted",
		OwnerName:   "Ada <Lovelace>",
		OwnerEmail:  "ada@example.com",
		SubmittedAt: &submitted,
		Lines: []BudgetLine{
			{SKU: "SKU-1", Name: "Router", Quantity: 2, Price: decimal.RequireFromString("10.5"), Subtotal: decimal.RequireFromString("21")},
		},
		Total: decimal.RequireFromString("21"),
	}
}

func TestBudgetHTMLIncludesLinesAndEscapes(t *testing.T) {
	html, err := BudgetHTML(sampleDocument())
	require.NoError(t, err)

	assert.Contains(t, html, "Router")
	assert.Contains(t, html, "10.50")
	assert.Contains(t, html, "21.00")
	assert.Contains(t, html, "2026-05-01 10:00 UTC")
	assert.Contains(t, html, "Ada &lt;Lovelace&gt;")
	assert.NotContains(t, html, "Total in")
}

func TestBudgetHTMLPrintsRateWhenPresent(t *testing.T) {
	doc := sampleDocument()
	doc.Rate = &RateLine{Currency: "ARS", Value: decimal.RequireFromString("1000"), Total: decimal.RequireFromString("21000")}

	html, err := BudgetHTML(doc)
	require.NoError(t, err)
	assert.Contains(t, html, "Total in ARS")
	assert.Contains(t, html, "21000.00")
}

func TestGeneratorBudgetPDF(t *testing.T) {
	renderer := &fakeRenderer{}
	gen, err := NewGenerator(renderer)
	require.NoError(t, err)

	pdf, err := gen.BudgetPDF(context.Background(), sampleDocument())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake", string(pdf))
	assert.True(t, strings.HasPrefix(renderer.html, "<!DOCTYPE html>"))

	renderer.err = errors.New("chrome gone")
	_, err = gen.BudgetPDF(context.Background(), sampleDocument())
	assert.ErrorContains(t, err, "chrome gone")
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "budget-5b8e7a4c.pdf", Filename(uuid.MustParse("5b8e7a4c-1f3d-4a8e-9c2b-0d1e2f3a4b5c")))
}
