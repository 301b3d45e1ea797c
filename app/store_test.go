package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"seatwatch/lib/models"
)

func setupStore(t *testing.T) (*store, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Subscriber{},
		&models.Subscription{},
		&models.HistoryEntry{},
	))
	return &store{db}, db
}

func seedSubscription(t *testing.T, db *gorm.DB, subscriberActive, subscriptionActive bool) models.Subscription {
	subscriber := models.Subscriber{
		Platform:           models.PlatformTelegram,
		PlatformIdentifier: uuid.NewString(),
		Active:             subscriberActive,
	}
	require.NoError(t, db.Create(&subscriber).Error)

	subscription := models.Subscription{
		SubscriberID: subscriber.ID,
		CourseCode:   "SC2103",
		IndexNumber:  "10294",
		Active:       subscriptionActive,
	}
	require.NoError(t, db.Create(&subscription).Error)
	return subscription
}

func TestListActiveSubscriptions(t *testing.T) {
	s, db := setupStore(t)

	active := seedSubscription(t, db, true, true)
	seedSubscription(t, db, true, false)  // cancelled subscription
	seedSubscription(t, db, false, true)  // opted-out subscriber
	seedSubscription(t, db, false, false) // both

	got, err := s.ListActiveSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestListActiveSubscriptionsLoadsSubscriber(t *testing.T) {
	s, db := setupStore(t)
	seedSubscription(t, db, true, true)

	got, err := s.ListActiveSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	subscriber := got[0].Subscriber
	assert.Equal(t, got[0].SubscriberID, subscriber.ID)
	assert.Equal(t, models.PlatformTelegram, subscriber.Platform)
	assert.NotEmpty(t, subscriber.PlatformIdentifier)
}

func TestUpdateSubscriptionState(t *testing.T) {
	s, db := setupStore(t)
	sub := seedSubscription(t, db, true, true)

	checkedAt := time.Date(2025, 8, 14, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.UpdateSubscriptionState(context.Background(), sub.ID, 4, checkedAt))

	var reloaded models.Subscription
	require.NoError(t, db.First(&reloaded, sub.ID).Error)
	require.True(t, reloaded.LastVacancyCount.Valid)
	assert.EqualValues(t, 4, reloaded.LastVacancyCount.Int64)
	require.True(t, reloaded.LastCheckedAt.Valid)
	assert.WithinDuration(t, checkedAt, reloaded.LastCheckedAt.Time, time.Second)
}

func TestUpdateSubscriptionStateUnknownID(t *testing.T) {
	s, _ := setupStore(t)

	err := s.UpdateSubscriptionState(context.Background(), 9999, 4, time.Now().UTC())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAppendHistory(t *testing.T) {
	s, db := setupStore(t)
	sub := seedSubscription(t, db, true, true)

	for i, outcome := range []string{models.OutcomeChecked, models.OutcomeFailed} {
		entry := &models.HistoryEntry{
			CycleID:        "cycle-1",
			SubscriptionID: sub.ID,
			SubscriberID:   sub.SubscriberID,
			CourseCode:     sub.CourseCode,
			IndexNumber:    sub.IndexNumber,
			VacancyCount:   i,
			Outcome:        outcome,
			CheckedAt:      time.Now().UTC(),
		}
		require.NoError(t, s.AppendHistory(context.Background(), entry))
		assert.NotZero(t, entry.ID)
	}

	var entries models.HistoryEntries
	require.NoError(t, db.Where("subscription_id = ?", sub.ID).Find(&entries).Error)
	assert.Len(t, entries, 2)
}
