package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/budgetdesk-backend/api/responses"
	"github.com/angelmondragon/budgetdesk-backend/api/validators"
	"github.com/angelmondragon/budgetdesk-backend/internal/budgets"
	pkgerrors "github.com/angelmondragon/budgetdesk-backend/pkg/errors"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/pagination"
)

const maxStatusFilterLen = 32

type budgetService interface {
	Approve(ctx context.Context, actor budgets.Actor, budgetID uuid.UUID) (*budgets.BudgetDTO, error)
	Reject(ctx context.Context, actor budgets.Actor, budgetID uuid.UUID) (*budgets.BudgetDTO, error)
	GetByID(ctx context.Context, actor budgets.Actor, budgetID uuid.UUID) (*budgets.BudgetDTO, error)
	ListAll(ctx context.Context, actor budgets.Actor, params budgets.ListParams) (*budgets.ListResult, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]budgets.BudgetDTO, error)
	RenderPDF(ctx context.Context, actor budgets.Actor, budgetID uuid.UUID) (*budgets.PDF, error)
}

type budgetDecision func(ctx context.Context, actor budgets.Actor, budgetID uuid.UUID) (*budgets.BudgetDTO, error)

// BudgetList returns every non-active budget, newest first. Privileged only.
func BudgetList(svc budgetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "budget service unavailable"))
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListAll(r.Context(), actor, budgets.ListParams{
			Status: validators.ParseQueryString(r, "status", maxStatusFilterLen),
			Limit:  limit,
			Cursor: validators.ParseQueryString(r, "cursor", 512),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// BudgetListMine returns the caller's own non-active budgets.
func BudgetListMine(svc budgetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "budget service unavailable"))
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.ListMine(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if items == nil {
			items = []budgets.BudgetDTO{}
		}
		responses.WriteSuccess(w, items)
	}
}

// BudgetDetail returns one budget to its owner or a privileged user.
func BudgetDetail(svc budgetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "budget service unavailable"))
			return
		}
		actor, budgetID, err := budgetRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.GetByID(r.Context(), actor, budgetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// BudgetApprove moves a submitted budget to approved.
func BudgetApprove(svc budgetService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return decide(nil, "budget approved", logg)
	}
	return decide(svc.Approve, "budget approved", logg)
}

// BudgetReject moves a submitted budget to rejected.
func BudgetReject(svc budgetService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return decide(nil, "budget rejected", logg)
	}
	return decide(svc.Reject, "budget rejected", logg)
}

func decide(fn budgetDecision, message string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fn == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "budget service unavailable"))
			return
		}
		actor, budgetID, err := budgetRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := fn(r.Context(), actor, budgetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessMessage(w, http.StatusOK, message, dto)
	}
}

// BudgetPDF streams the rendered budget document.
func BudgetPDF(svc budgetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "budget service unavailable"))
			return
		}
		actor, budgetID, err := budgetRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pdf, err := svc.RenderPDF(r.Context(), actor, budgetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFile(w, "application/pdf", pdf.Filename, pdf.Content)
	}
}

func budgetRequest(r *http.Request) (budgets.Actor, uuid.UUID, error) {
	actor, err := requestActor(r)
	if err != nil {
		return budgets.Actor{}, uuid.Nil, err
	}
	budgetID, err := validators.ParseUUIDParam(r, "budgetId")
	if err != nil {
		return budgets.Actor{}, uuid.Nil, err
	}
	return actor, budgetID, nil
}
