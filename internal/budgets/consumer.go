package budgets

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/registry"
)

const effectsConsumerName = "budget-effects"

type messageResolver interface {
	ResolveMessage(eventType enums.OutboxEventType, body []byte) (*registry.ResolvedEvent, error)
}

type processedTracker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Outcome, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type eventHandler interface {
	Handle(ctx context.Context, resolved *registry.ResolvedEvent) error
}

// Consumer receives budget events from Pub/Sub and runs their side effects
// once per event id.
type Consumer struct {
	subscription *pubsub.Subscriber
	resolver     messageResolver
	idempotency  processedTracker
	handler      eventHandler
	logg         *logger.Logger
}

func NewConsumer(subscription *pubsub.Subscriber, resolver messageResolver, tracker processedTracker, handler eventHandler, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("budget subscription required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if handler == nil {
		return nil, fmt.Errorf("event handler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		resolver:     resolver,
		idempotency:  tracker,
		handler:      handler,
		logg:         logg,
	}, nil
}

// Run receives until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	resolved, err := c.resolver.ResolveMessage(enums.OutboxEventType(eventType), msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable budget event", err)
		return processResult{}
	}
	eventID := resolved.Envelope.ID()
	logCtx = c.logg.WithEvent(logCtx, eventType, eventID.String())

	outcome, err := c.idempotency.Claim(ctx, effectsConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return processResult{nack: true}
	}
	switch outcome {
	case idempotency.Duplicate:
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	case idempotency.InFlight:
		c.logg.Info(logCtx, "event is being processed by another delivery")
		return processResult{nack: true}
	}

	if err := c.handler.Handle(logCtx, resolved); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			c.logg.Error(logCtx, "budget event rejected", err)
			c.complete(ctx, logCtx, eventID)
			return processResult{}
		}
		c.logg.Error(logCtx, "budget event handling failed", err)
		if relErr := c.idempotency.Release(ctx, effectsConsumerName, eventID); relErr != nil {
			c.logg.WarnErr(logCtx, "idempotency claim release failed", relErr)
		}
		return processResult{nack: true}
	}
	c.complete(ctx, logCtx, eventID)
	c.logg.Info(logCtx, "budget event handled")
	return processResult{}
}

// complete marks the event done; on failure the claim simply expires and a
// later redelivery may run the effects again.
func (c *Consumer) complete(ctx, logCtx context.Context, eventID uuid.UUID) {
	if err := c.idempotency.Complete(ctx, effectsConsumerName, eventID); err != nil {
		c.logg.WarnErr(logCtx, "idempotency completion failed", err)
	}
}
