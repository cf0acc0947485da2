package budgets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/budgetdesk-backend/internal/notifications"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/documents"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox"
	"github.com/angelmondragon/budgetdesk-backend/pkg/pagination"
)

// BudgetRepository is the persistence surface of the workflow. Transition
// methods report the affected row count; zero means the guard did not hold.
type BudgetRepository interface {
	WithTx(tx *gorm.DB) BudgetRepository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	FindActiveCartID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	MarkSubmitted(ctx context.Context, cartID uuid.UUID, at time.Time) (int64, error)
	MarkDecided(ctx context.Context, id uuid.UUID, to enums.CartStatus, actorID uuid.UUID, at time.Time) (int64, error)
	List(ctx context.Context, params listBudgetsParams) ([]models.Cart, *pagination.Cursor, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Cart, error)
	ListStale(ctx context.Context, submittedBefore time.Time, limit int) ([]models.Cart, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type pdfGenerator interface {
	BudgetPDF(ctx context.Context, doc documents.BudgetDocument) ([]byte, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListPrivileged(ctx context.Context) ([]models.User, error)
}

type budgetLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
}

type notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) (*notifications.NotificationDTO, error)
	NotifyMany(ctx context.Context, userIDs []uuid.UUID, input notifications.NotifyInput) (int, error)
}
