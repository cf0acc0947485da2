package payloads

import (
	"time"

	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetSubmittedEvent is emitted when a user submits their active cart.
type BudgetSubmittedEvent struct {
	BudgetID    uuid.UUID       `json:"budget_id"`
	UserID      uuid.UUID       `json:"user_id"`
	ItemCount   int             `json:"item_count"`
	Total       decimal.Decimal `json:"total"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// BudgetDecidedEvent is emitted for both approvals and rejections.
type BudgetDecidedEvent struct {
	BudgetID  uuid.UUID        `json:"budget_id"`
	UserID    uuid.UUID        `json:"user_id"`
	Status    enums.CartStatus `json:"status"`
	DecidedBy uuid.UUID        `json:"decided_by"`
	DecidedAt time.Time        `json:"decided_at"`
}

// BudgetStaleEvent nudges reviewers about a budget waiting too long.
type BudgetStaleEvent struct {
	BudgetID    uuid.UUID `json:"budget_id"`
	UserID      uuid.UUID `json:"user_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	PendingFor  string    `json:"pending_for"`
}
