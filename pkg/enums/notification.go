package enums

import "slices"

// NotificationType is the notification_type column of notifications.
type NotificationType string

const (
	// NotificationTypeNewBudget goes to privileged users when a budget arrives.
	NotificationTypeNewBudget NotificationType = "new_budget"
	// NotificationTypeBudgetSubmitted confirms the submission to its owner.
	NotificationTypeBudgetSubmitted NotificationType = "budget_submitted"
	NotificationTypeBudgetApproved  NotificationType = "budget_approved"
	NotificationTypeBudgetRejected  NotificationType = "budget_rejected"
	// NotificationTypeBudgetStale nudges reviewers about a pending budget.
	NotificationTypeBudgetStale NotificationType = "budget_stale"
)

var notificationTypes = []NotificationType{
	NotificationTypeNewBudget,
	NotificationTypeBudgetSubmitted,
	NotificationTypeBudgetApproved,
	NotificationTypeBudgetRejected,
	NotificationTypeBudgetStale,
}

func (n NotificationType) IsValid() bool { return slices.Contains(notificationTypes, n) }

func ParseNotificationType(value string) (NotificationType, error) {
	return parse("notification type", value, notificationTypes)
}
