package checker

import (
	"context"
	"time"

	"seatwatch/lib/models"
)

// Store is the persistence surface the checking cycle owns. During a cycle
// the checker is the only writer of subscription vacancy state and history;
// the front-end only ever creates and deactivates subscriptions.
type Store interface {
	// ListActiveSubscriptions returns every checkable subscription with its
	// subscriber association populated.
	ListActiveSubscriptions(ctx context.Context) (models.Subscriptions, error)

	// UpdateSubscriptionState persists the newly observed vacancy count and
	// check timestamp for one subscription.
	UpdateSubscriptionState(ctx context.Context, subscriptionID uint, vacancyCount int, checkedAt time.Time) error

	// AppendHistory inserts one audit record. History is append-only.
	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
}
