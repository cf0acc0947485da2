package budgets

import (
	"fmt"

	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/documents"
	"github.com/angelmondragon/budgetdesk-backend/pkg/exchangerate"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/mailer"
)

// Integrations bundles the outbound clients shared by the API and the workers.
type Integrations struct {
	Rates     *exchangerate.Client
	Documents *documents.Generator
	Mailer    mailer.Sender
	renderer  *documents.ChromeRenderer
}

func NewIntegrations(cfg *config.Config, logg *logger.Logger) (*Integrations, error) {
	renderer, err := documents.NewChromeRenderer(cfg.PDF, logg)
	if err != nil {
		return nil, fmt.Errorf("pdf renderer: %w", err)
	}
	generator, err := documents.NewGenerator(renderer)
	if err != nil {
		renderer.Close()
		return nil, fmt.Errorf("pdf generator: %w", err)
	}
	sender, err := mailer.NewFromConfig(cfg.Sendgrid, logg)
	if err != nil {
		renderer.Close()
		return nil, fmt.Errorf("mailer: %w", err)
	}
	return &Integrations{
		Rates:     exchangerate.New(cfg.ExchangeRate, logg),
		Documents: generator,
		Mailer:    sender,
		renderer:  renderer,
	}, nil
}

// Close stops the headless browser.
func (i *Integrations) Close() {
	if i == nil || i.renderer == nil {
		return
	}
	i.renderer.Close()
}
