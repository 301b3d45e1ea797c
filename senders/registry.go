package senders

import (
	"context"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"seatwatch/config"
	"seatwatch/lib/models"
)

// Alert is the structured payload the checking engine hands over. Senders own
// whatever little formatting their platform needs; the engine never builds
// message text.
type Alert struct {
	CourseCode  string
	IndexNumber string
	Vacancies   int
	Waitlist    int
}

type Sender interface {
	SendAlert(ctx context.Context, subscriber *models.Subscriber, alert Alert) (string, error)
}

type Registry map[string]Sender

func NewRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return Registry{
		models.PlatformTelegram: &telegramSender{base},
		models.PlatformEmail:    &mailgunSender{base},
	}
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
