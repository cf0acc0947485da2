package budgets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/budgetdesk-backend/internal/cart"
	"github.com/angelmondragon/budgetdesk-backend/pkg/documents"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/budgetdesk-backend/pkg/errors"
	"github.com/angelmondragon/budgetdesk-backend/pkg/exchangerate"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/budgetdesk-backend/pkg/pagination"
)

const alreadyProcessedMessage = "budget not found or already processed"

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) Privileged() bool {
	return a.Role.IsPrivileged()
}

func (a Actor) ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// ListParams filters the privileged budget listing.
type ListParams struct {
	Status string
	Limit  int
	Cursor string
}

// Service drives the budget workflow: active -> submitted -> approved | rejected.
type Service interface {
	Submit(ctx context.Context, actor Actor) (*BudgetDTO, error)
	Approve(ctx context.Context, actor Actor, budgetID uuid.UUID) (*BudgetDTO, error)
	Reject(ctx context.Context, actor Actor, budgetID uuid.UUID) (*BudgetDTO, error)
	GetByID(ctx context.Context, actor Actor, budgetID uuid.UUID) (*BudgetDTO, error)
	ListAll(ctx context.Context, actor Actor, params ListParams) (*ListResult, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]BudgetDTO, error)
	RenderPDF(ctx context.Context, actor Actor, budgetID uuid.UUID) (*PDF, error)
}

type ServiceParams struct {
	Repository  BudgetRepository
	Tx          txRunner
	Outbox      eventEmitter
	Documents   pdfGenerator
	Rates       exchangerate.Fetcher
	CompanyName string
	Logger      *logger.Logger
}

type service struct {
	repo      BudgetRepository
	tx        txRunner
	outbox    eventEmitter
	documents pdfGenerator
	rates     exchangerate.Fetcher
	company   string
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("budget repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Documents == nil {
		return nil, fmt.Errorf("pdf generator required")
	}
	if params.Rates == nil {
		return nil, fmt.Errorf("exchange rate fetcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repository,
		tx:        params.Tx,
		outbox:    params.Outbox,
		documents: params.Documents,
		rates:     params.Rates,
		company:   params.CompanyName,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Submit turns the caller's active cart into a submitted budget. The status
// write and the budget_submitted event commit together.
func (s *service) Submit(ctx context.Context, actor Actor) (*BudgetDTO, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	now := s.now().UTC()
	var budgetID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cartID, err := repo.FindActiveCartID(ctx, actor.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptyCart()
		}
		if err != nil {
			return err
		}

		rows, err := repo.MarkSubmitted(ctx, cartID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return submitMissed(ctx, repo, cartID)
		}

		submitted, err := repo.FindByID(ctx, cartID)
		if err != nil {
			return err
		}
		summary := cart.FromModel(submitted)
		budgetID = cartID

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBudgetSubmitted,
			AggregateType: enums.AggregateBudget,
			AggregateID:   cartID,
			Actor:         actor.ref(),
			OccurredAt:    now,
			Data: payloads.BudgetSubmittedEvent{
				BudgetID:    cartID,
				UserID:      actor.UserID,
				ItemCount:   summary.ItemCount,
				Total:       summary.Total,
				SubmittedAt: now,
			},
		})
	})
	if err != nil {
		return nil, repoError(err, "submit budget")
	}

	logCtx := s.logg.WithBudgetID(ctx, budgetID.String())
	s.logg.Info(logCtx, "budget submitted")
	return s.load(ctx, budgetID)
}

func (s *service) Approve(ctx context.Context, actor Actor, budgetID uuid.UUID) (*BudgetDTO, error) {
	return s.decide(ctx, actor, budgetID, enums.CartStatusApproved, enums.EventBudgetApproved)
}

func (s *service) Reject(ctx context.Context, actor Actor, budgetID uuid.UUID) (*BudgetDTO, error) {
	return s.decide(ctx, actor, budgetID, enums.CartStatusRejected, enums.EventBudgetRejected)
}

// decide applies a compare-and-swap from submitted; among racing deciders only
// one sees a row affected.
func (s *service) decide(ctx context.Context, actor Actor, budgetID uuid.UUID, to enums.CartStatus, eventType enums.OutboxEventType) (*BudgetDTO, error) {
	if !actor.Privileged() {
		return nil, permissionDenied()
	}
	if budgetID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "budget id is required")
	}

	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		rows, err := repo.MarkDecided(ctx, budgetID, to, actor.UserID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, alreadyProcessedMessage)
		}

		decided, err := repo.FindByID(ctx, budgetID)
		if err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateBudget,
			AggregateID:   budgetID,
			Actor:         actor.ref(),
			OccurredAt:    now,
			Data: payloads.BudgetDecidedEvent{
				BudgetID:  budgetID,
				UserID:    decided.UserID,
				Status:    to,
				DecidedBy: actor.UserID,
				DecidedAt: now,
			},
		})
	})
	if err != nil {
		return nil, repoError(err, "decide budget")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"budget_id":  budgetID.String(),
		"status":     string(to),
		"decided_by": actor.UserID.String(),
	})
	s.logg.Info(logCtx, "budget decided")
	return s.load(ctx, budgetID)
}

// GetByID returns a budget visible to the owner and to privileged users.
func (s *service) GetByID(ctx context.Context, actor Actor, budgetID uuid.UUID) (*BudgetDTO, error) {
	budget, err := s.load(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && budget.UserID != actor.UserID {
		return nil, permissionDenied()
	}
	return budget, nil
}

func (s *service) ListAll(ctx context.Context, actor Actor, params ListParams) (*ListResult, error) {
	if !actor.Privileged() {
		return nil, permissionDenied()
	}

	query := listBudgetsParams{Limit: params.Limit}
	if status := strings.TrimSpace(params.Status); status != "" {
		parsed, err := enums.ParseBudgetStatus(status)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
				WithDetails(map[string]any{"status": status})
		}
		query.Status = &parsed
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Cursor = cursor

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, repoError(err, "list budgets")
	}
	result := &ListResult{Items: fromModels(rows)}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID) ([]BudgetDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, repoError(err, "list user budgets")
	}
	return fromModels(rows), nil
}

// RenderPDF prints the budget, with the converted total when a rate is available.
func (s *service) RenderPDF(ctx context.Context, actor Actor, budgetID uuid.UUID) (*PDF, error) {
	budget, err := s.GetByID(ctx, actor, budgetID)
	if err != nil {
		return nil, err
	}

	var rate *exchangerate.Rate
	if r, ok := s.rates.Fetch(ctx); ok {
		rate = &r
	}

	content, err := s.documents.BudgetPDF(ctx, buildDocument(budget, s.company, rate, s.now()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render budget pdf")
	}
	return &PDF{Filename: documents.Filename(budget.ID), Content: content}, nil
}

func (s *service) load(ctx context.Context, budgetID uuid.UUID) (*BudgetDTO, error) {
	if budgetID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "budget id is required")
	}
	row, err := s.repo.FindByID(ctx, budgetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "budget not found")
		}
		return nil, repoError(err, "load budget")
	}
	if row.Status == enums.CartStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "budget not found")
	}
	return fromModel(row), nil
}

// submitMissed tells an empty cart apart from one a concurrent submit already took.
func submitMissed(ctx context.Context, repo BudgetRepository, cartID uuid.UUID) error {
	current, err := repo.FindByID(ctx, cartID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil && current.Status == enums.CartStatusActive {
		return emptyCart()
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "cart was already submitted")
}

func emptyCart() error {
	return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
}

func permissionDenied() error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "permission denied")
}

func repoError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
