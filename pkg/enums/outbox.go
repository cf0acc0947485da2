package enums

import "slices"

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const AggregateBudget OutboxAggregateType = "budget"

var aggregateTypes = []OutboxAggregateType{AggregateBudget}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, aggregateTypes)
}

// OutboxEventType is the event_type column of outbox_events and the
// event_type attribute on Pub/Sub messages.
type OutboxEventType string

const (
	EventBudgetSubmitted OutboxEventType = "budget_submitted"
	EventBudgetApproved  OutboxEventType = "budget_approved"
	EventBudgetRejected  OutboxEventType = "budget_rejected"
	EventBudgetStale     OutboxEventType = "budget_stale"
)

var outboxEventTypes = []OutboxEventType{
	EventBudgetSubmitted,
	EventBudgetApproved,
	EventBudgetRejected,
	EventBudgetStale,
}

func (e OutboxEventType) IsValid() bool { return slices.Contains(outboxEventTypes, e) }

// IsDecision reports whether the event closes a budget.
func (e OutboxEventType) IsDecision() bool {
	return e == EventBudgetApproved || e == EventBudgetRejected
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, outboxEventTypes)
}
