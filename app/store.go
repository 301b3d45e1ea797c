package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"seatwatch/lib/checker"
	"seatwatch/lib/models"
)

// NewStore exposes the database to the checking engine behind checker.Store.
func NewStore(lc fx.Lifecycle, db *gorm.DB) checker.Store {
	return &store{db}
}

type store struct {
	db *gorm.DB
}

func (s *store) ListActiveSubscriptions(ctx context.Context) (models.Subscriptions, error) {
	var subscriptions models.Subscriptions
	tx := s.db.WithContext(ctx).
		Where("subscriptions.active = ?", true).
		InnerJoins("Subscriber").
		Find(&subscriptions)
	if err := tx.Error; err != nil {
		return nil, err
	}

	// Subscriber-wide opt-outs deactivate the subscriber row; their
	// subscriptions stop being checkable without a per-row sweep.
	checkable := subscriptions[:0]
	for _, sub := range subscriptions {
		if sub.Subscriber.Active {
			checkable = append(checkable, sub)
		}
	}
	return checkable, nil
}

func (s *store) UpdateSubscriptionState(ctx context.Context, subscriptionID uint, vacancyCount int, checkedAt time.Time) error {
	tx := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Updates(map[string]any{
			"last_vacancy_count": vacancyCount,
			"last_checked_at":    checkedAt,
		})
	if err := tx.Error; err != nil {
		return err
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *store) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
