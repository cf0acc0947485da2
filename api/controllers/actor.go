package controllers

import (
	"net/http"

	"github.com/angelmondragon/budgetdesk-backend/api/middleware"
	"github.com/angelmondragon/budgetdesk-backend/internal/budgets"
	pkgerrors "github.com/angelmondragon/budgetdesk-backend/pkg/errors"
)

func requestActor(r *http.Request) (budgets.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return budgets.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return budgets.Actor{UserID: actor.UserID, Role: actor.Role}, nil
}
