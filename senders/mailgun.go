package senders

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"seatwatch/lib/models"
)

// mailgunSender delivers alerts by email. The subscriber's platform
// identifier is their address.
type mailgunSender struct {
	base
}

func (e *mailgunSender) SendAlert(ctx context.Context, subscriber *models.Subscriber, alert Alert) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport

	subject := fmt.Sprintf("Seatwatch: vacancy open on %s/%s", alert.CourseCode, alert.IndexNumber)

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, subject, "", subscriber.PlatformIdentifier)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(fmt.Sprintf(
		`
			<h3>Vacancy open on %s, index %s</h3>
			<br>
			Vacancies: %d<br>
			Waitlist: %d
		`,
		alert.CourseCode, alert.IndexNumber, alert.Vacancies, alert.Waitlist,
	))

	timeout := time.Duration(e.cfg.Mailgun.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	return id, err
}
