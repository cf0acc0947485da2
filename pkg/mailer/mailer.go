// Package mailer sends transactional email. SendGrid is the only transport;
// without an API key the Noop sender logs and drops messages.
package mailer

import (
	"context"
	"strings"

	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
)

type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}

type Message struct {
	To          []Address
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewFromConfig returns the SendGrid sender when configured and Noop otherwise.
func NewFromConfig(cfg config.SendgridConfig, logg *logger.Logger) (Sender, error) {
	if !cfg.Configured() {
		logg.Warn(context.Background(), "sendgrid not configured; outgoing email disabled")
		return NewNoop(logg), nil
	}
	return NewSendGrid(cfg, logg)
}

// Noop accepts every message without sending it.
type Noop struct {
	logg *logger.Logger
}

func NewNoop(logg *logger.Logger) *Noop {
	return &Noop{logg: logg}
}

func (n *Noop) Send(ctx context.Context, msg Message) error {
	if n.logg != nil {
		logCtx := n.logg.WithFields(ctx, map[string]any{
			"subject":    msg.Subject,
			"recipients": recipientList(msg.To),
		})
		n.logg.Info(logCtx, "email skipped, mailer disabled")
	}
	return nil
}

func recipientList(to []Address) string {
	emails := make([]string, 0, len(to))
	for _, addr := range to {
		emails = append(emails, addr.Email)
	}
	return strings.Join(emails, ",")
}
