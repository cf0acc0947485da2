package budgets

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/budgetdesk-backend/internal/cart"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
)

// BudgetDTO is a cart past the active state, with its owner attached.
type BudgetDTO struct {
	cart.CartDTO
	User *UserDTO `json:"user,omitempty"`
}

type UserDTO struct {
	ID        uuid.UUID      `json:"id"`
	Email     string         `json:"email"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Role      enums.UserRole `json:"role"`
}

// ListResult wraps one page of budgets and the cursor for the next page.
type ListResult struct {
	Items  []BudgetDTO `json:"items"`
	Cursor string      `json:"cursor"`
}

// PDF is a rendered budget document.
type PDF struct {
	Filename string
	Content  []byte
}

func fromModel(c *models.Cart) *BudgetDTO {
	if c == nil {
		return nil
	}
	dto := &BudgetDTO{CartDTO: *cart.FromModel(c)}
	if c.User != nil {
		dto.User = &UserDTO{
			ID:        c.User.ID,
			Email:     c.User.Email,
			FirstName: c.User.FirstName,
			LastName:  c.User.LastName,
			Role:      c.User.Role,
		}
	}
	return dto
}

func fromModels(rows []models.Cart) []BudgetDTO {
	out := make([]BudgetDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *fromModel(&rows[i]))
	}
	return out
}

func (u *UserDTO) displayName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}
