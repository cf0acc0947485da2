package budgets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/budgetdesk-backend/internal/notifications"
	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/documents"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/angelmondragon/budgetdesk-backend/pkg/exchangerate"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/mailer"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/registry"
)

const defaultSendTimeout = 45 * time.Second

type EffectsParams struct {
	Logger        *logger.Logger
	Notifications notifier
	Users         userDirectory
	Budgets       budgetLoader
	Rates         exchangerate.Fetcher
	Documents     pdfGenerator
	Mailer        mailer.Sender
	Mail          config.MailConfig
	CompanyName   string
	PublicURL     string
}

// Effects runs the side effects of budget events: notifications first, then
// best-effort rate lookup, PDF rendering and email. Integration failures are
// logged and absorbed. Handle returns an error only when no notification could
// be recorded, so a redelivery cannot duplicate them.
type Effects struct {
	logg        *logger.Logger
	notify      notifier
	users       userDirectory
	budgets     budgetLoader
	rates       exchangerate.Fetcher
	documents   pdfGenerator
	mail        mailer.Sender
	admins      []string
	sendTimeout time.Duration
	company     string
	publicURL   string
	now         func() time.Time
}

func NewEffects(params EffectsParams) (*Effects, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Notifications == nil {
		return nil, errors.New("notification service required")
	}
	if params.Users == nil {
		return nil, errors.New("user directory required")
	}
	if params.Budgets == nil {
		return nil, errors.New("budget loader required")
	}
	if params.Rates == nil {
		return nil, errors.New("exchange rate fetcher required")
	}
	if params.Documents == nil {
		return nil, errors.New("pdf generator required")
	}
	if params.Mailer == nil {
		return nil, errors.New("mailer required")
	}
	timeout := params.Mail.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Effects{
		logg:        params.Logger,
		notify:      params.Notifications,
		users:       params.Users,
		budgets:     params.Budgets,
		rates:       params.Rates,
		documents:   params.Documents,
		mail:        params.Mailer,
		admins:      params.Mail.AdminRecipients,
		sendTimeout: timeout,
		company:     params.CompanyName,
		publicURL:   strings.TrimRight(params.PublicURL, "/"),
		now:         time.Now,
	}, nil
}

// Handle dispatches a decoded budget event.
func (e *Effects) Handle(ctx context.Context, resolved *registry.ResolvedEvent) error {
	if resolved == nil {
		return registry.NewNonRetryableError(errors.New("event missing"))
	}
	switch payload := resolved.Payload.(type) {
	case *payloads.BudgetSubmittedEvent:
		return e.onSubmitted(e.logg.WithBudgetID(ctx, payload.BudgetID.String()), payload)
	case *payloads.BudgetDecidedEvent:
		return e.onDecided(e.logg.WithBudgetID(ctx, payload.BudgetID.String()), payload)
	case *payloads.BudgetStaleEvent:
		return e.onStale(e.logg.WithBudgetID(ctx, payload.BudgetID.String()), payload)
	default:
		return registry.NewNonRetryableError(fmt.Errorf("unsupported budget payload %T", resolved.Payload))
	}
}

func (e *Effects) onSubmitted(ctx context.Context, event *payloads.BudgetSubmittedEvent) error {
	owner, err := e.users.FindByID(ctx, event.UserID)
	if err != nil {
		e.logg.WarnErr(ctx, "budget owner lookup failed", err)
	}
	reviewers, err := e.users.ListPrivileged(ctx)
	if err != nil {
		return fmt.Errorf("list reviewers: %w", err)
	}

	link := budgetPath(event.BudgetID)
	created, err := e.notify.NotifyMany(ctx, userIDs(reviewers), notifications.NotifyInput{
		Type: enums.NotificationTypeNewBudget,
		Message: fmt.Sprintf("New budget request from %s: %d item(s), total %s",
			ownerName(owner), event.ItemCount, event.Total.StringFixed(2)),
		Link: link,
	})
	if err != nil {
		if created == 0 {
			return fmt.Errorf("notify reviewers: %w", err)
		}
		e.logg.WarnErr(ctx, "some reviewers were not notified", err)
	}

	if _, err := e.notify.Notify(ctx, notifications.NotifyInput{
		UserID:  event.UserID,
		Type:    enums.NotificationTypeBudgetSubmitted,
		Message: fmt.Sprintf("Your budget %s was submitted for review", shortID(event.BudgetID)),
		Link:    link,
	}); err != nil {
		e.logg.Error(ctx, "owner confirmation notification failed", err)
	}

	budget, err := e.loadBudget(ctx, event.BudgetID)
	if err != nil {
		e.logg.Error(ctx, "budget load for email failed", err)
		return nil
	}
	rate := e.fetchRate(ctx)
	pdf := e.renderPDF(ctx, budget, rate)

	var wg sync.WaitGroup
	if admins := e.adminRecipients(reviewers); len(admins) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.sendEmail(ctx, admins,
				fmt.Sprintf("New budget request %s", shortID(budget.ID)),
				fmt.Sprintf("%s submitted a budget with %d item(s), total %s.\n%s",
					ownerName(owner), budget.ItemCount, budget.Total.StringFixed(2), e.budgetURL(budget.ID)),
				budget, pdf)
		}()
	}
	if owner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.sendEmail(ctx, []mailer.Address{{Email: owner.Email, Name: owner.FullName()}},
				fmt.Sprintf("Budget %s received", shortID(budget.ID)),
				fmt.Sprintf("We received your budget request with %d item(s), total %s.\n%s",
					budget.ItemCount, budget.Total.StringFixed(2), e.budgetURL(budget.ID)),
				budget, pdf)
		}()
	}
	wg.Wait()
	return nil
}

func (e *Effects) onDecided(ctx context.Context, event *payloads.BudgetDecidedEvent) error {
	var (
		kind    enums.NotificationType
		message string
	)
	switch event.Status {
	case enums.CartStatusApproved:
		kind = enums.NotificationTypeBudgetApproved
		message = fmt.Sprintf("Your budget %s was approved", shortID(event.BudgetID))
	case enums.CartStatusRejected:
		kind = enums.NotificationTypeBudgetRejected
		message = fmt.Sprintf("Your budget %s was rejected", shortID(event.BudgetID))
	default:
		return registry.NewNonRetryableError(fmt.Errorf("unexpected decision status %q", event.Status))
	}

	if _, err := e.notify.Notify(ctx, notifications.NotifyInput{
		UserID:  event.UserID,
		Type:    kind,
		Message: message,
		Link:    budgetPath(event.BudgetID),
	}); err != nil {
		return fmt.Errorf("notify owner: %w", err)
	}

	if event.Status != enums.CartStatusApproved {
		return nil
	}

	owner, err := e.users.FindByID(ctx, event.UserID)
	if err != nil {
		e.logg.WarnErr(ctx, "budget owner lookup failed; approval email skipped", err)
		return nil
	}
	budget, err := e.loadBudget(ctx, event.BudgetID)
	if err != nil {
		e.logg.Error(ctx, "budget load for email failed", err)
		return nil
	}
	e.SendBudgetEmail(ctx, mailer.Address{Email: owner.Email, Name: owner.FullName()}, budget, e.fetchRate(ctx))
	return nil
}

func (e *Effects) onStale(ctx context.Context, event *payloads.BudgetStaleEvent) error {
	reviewers, err := e.users.ListPrivileged(ctx)
	if err != nil {
		return fmt.Errorf("list reviewers: %w", err)
	}
	created, err := e.notify.NotifyMany(ctx, userIDs(reviewers), notifications.NotifyInput{
		Type:    enums.NotificationTypeBudgetStale,
		Message: fmt.Sprintf("Budget %s has been waiting for review for %s", shortID(event.BudgetID), event.PendingFor),
		Link:    budgetPath(event.BudgetID),
	})
	if err != nil {
		if created == 0 {
			return fmt.Errorf("notify reviewers: %w", err)
		}
		e.logg.WarnErr(ctx, "some reviewers were not notified", err)
	}
	return nil
}

// SendBudgetEmail renders the budget PDF and mails it to recipient. Failures
// are logged and never returned.
func (e *Effects) SendBudgetEmail(ctx context.Context, recipient mailer.Address, budget *BudgetDTO, rate *exchangerate.Rate) {
	pdf := e.renderPDF(ctx, budget, rate)
	e.sendEmail(ctx, []mailer.Address{recipient},
		fmt.Sprintf("Budget %s %s", shortID(budget.ID), budget.Status),
		fmt.Sprintf("Your budget is now %s. Total %s.\n%s",
			budget.Status, budget.Total.StringFixed(2), e.budgetURL(budget.ID)),
		budget, pdf)
}

func (e *Effects) sendEmail(ctx context.Context, to []mailer.Address, subject, body string, budget *BudgetDTO, pdf []byte) {
	msg := mailer.Message{To: to, Subject: subject, Text: body}
	if len(pdf) > 0 {
		msg.Attachments = []mailer.Attachment{{
			Filename: documents.Filename(budget.ID),
			MIMEType: "application/pdf",
			Content:  pdf,
		}}
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	if err := e.mail.Send(sendCtx, msg); err != nil {
		logCtx := e.logg.WithField(ctx, "subject", subject)
		e.logg.Error(logCtx, "budget email failed", err)
		return
	}
	e.logg.Info(e.logg.WithField(ctx, "recipients", len(to)), "budget email sent")
}

func (e *Effects) renderPDF(ctx context.Context, budget *BudgetDTO, rate *exchangerate.Rate) []byte {
	pdf, err := e.documents.BudgetPDF(ctx, buildDocument(budget, e.company, rate, e.now()))
	if err != nil {
		e.logg.WarnErr(ctx, "budget pdf rendering failed; sending without attachment", err)
		return nil
	}
	return pdf
}

func (e *Effects) fetchRate(ctx context.Context) *exchangerate.Rate {
	rate, ok := e.rates.Fetch(ctx)
	if !ok {
		return nil
	}
	return &rate
}

func (e *Effects) loadBudget(ctx context.Context, id uuid.UUID) (*BudgetDTO, error) {
	row, err := e.budgets.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromModel(row), nil
}

// adminRecipients prefers the configured list and falls back to the reviewers.
func (e *Effects) adminRecipients(reviewers []models.User) []mailer.Address {
	out := []mailer.Address{}
	for _, email := range e.admins {
		if email = strings.TrimSpace(email); email != "" {
			out = append(out, mailer.Address{Email: email})
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, u := range reviewers {
		out = append(out, mailer.Address{Email: u.Email, Name: u.FullName()})
	}
	return out
}

func (e *Effects) budgetURL(id uuid.UUID) string {
	return e.publicURL + budgetPath(id)
}

func budgetPath(id uuid.UUID) string {
	return "/budgets/" + id.String()
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}

func ownerName(u *models.User) string {
	if u == nil {
		return "a user"
	}
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

func userIDs(users []models.User) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
