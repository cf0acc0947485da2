package enums

import "fmt"

// CartStatus maps to the cart_status enum in Postgres. A cart starts active and
// moves one way through submission to a terminal decision.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusSubmitted CartStatus = "submitted"
	CartStatusApproved  CartStatus = "approved"
	CartStatusRejected  CartStatus = "rejected"
)

var validCartStatuses = []CartStatus{
	CartStatusActive,
	CartStatusSubmitted,
	CartStatusApproved,
	CartStatusRejected,
}

// budgetStatuses are the states a cart can hold once it has become a budget.
var budgetStatuses = []CartStatus{
	CartStatusSubmitted,
	CartStatusApproved,
	CartStatusRejected,
}

// String implements fmt.Stringer.
func (s CartStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CartStatus.
func (s CartStatus) IsValid() bool {
	for _, candidate := range validCartStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (s CartStatus) IsTerminal() bool {
	return s == CartStatusApproved || s == CartStatusRejected
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s CartStatus) CanTransitionTo(next CartStatus) bool {
	switch s {
	case CartStatusActive:
		return next == CartStatusSubmitted
	case CartStatusSubmitted:
		return next == CartStatusApproved || next == CartStatusRejected
	default:
		return false
	}
}

// BudgetStatuses returns the non-active statuses in workflow order.
func BudgetStatuses() []CartStatus {
	out := make([]CartStatus, len(budgetStatuses))
	copy(out, budgetStatuses)
	return out
}

// ParseCartStatus converts raw input into a CartStatus.
func ParseCartStatus(value string) (CartStatus, error) {
	for _, candidate := range validCartStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart status %q", value)
}

// ParseBudgetStatus accepts only statuses that a budget listing can filter on.
func ParseBudgetStatus(value string) (CartStatus, error) {
	for _, candidate := range budgetStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid budget status %q", value)
}
