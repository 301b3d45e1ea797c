package checker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"seatwatch/lib/models"
	"seatwatch/lib/vacancy"
	"seatwatch/senders"
)

// Event is one unit of notification work: a subscription whose tracked key
// just transitioned, paired with the record that triggered it. Produced at
// most once per subscription per cycle.
type Event struct {
	Subscription models.Subscription
	Record       vacancy.Record
}

type Dispatcher struct {
	log     *zap.Logger
	senders senders.Registry
}

func NewDispatcher(log *zap.Logger, registry senders.Registry) *Dispatcher {
	return &Dispatcher{log: log, senders: registry}
}

// Dispatch delivers one alert for one event. A single attempt: delivery
// failures are surfaced to the caller and logged, never retried, since the
// triggering state is already persisted and the transition will not re-derive
// next cycle.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	subscriber := event.Subscription.Subscriber

	sender, ok := d.senders[subscriber.Platform]
	if !ok {
		return fmt.Errorf("unsupported subscriber platform: %s", subscriber.Platform)
	}

	alert := senders.Alert{
		CourseCode:  vacancy.NormalizeCourseCode(event.Subscription.CourseCode),
		IndexNumber: event.Record.IndexNumber,
		Vacancies:   event.Record.Vacancies,
		Waitlist:    event.Record.Waitlist,
	}

	id, err := sender.SendAlert(ctx, &subscriber, alert)
	if err != nil {
		d.log.Sugar().Warnw("Failed to deliver alert",
			"subscriber_id", subscriber.ID, "platform", subscriber.Platform, "err", err)
		return err
	}

	d.log.Sugar().Infow("Alert delivered",
		"subscriber_id", subscriber.ID, "key", alert.CourseCode+"/"+alert.IndexNumber, "message_id", id)
	return nil
}
