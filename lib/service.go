package lib

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"seatwatch/config"
	"seatwatch/lib/models"
	"seatwatch/lib/vacancy"
)

var (
	ErrSubscriberNotFound    = errors.New("subscriber not found")
	ErrDuplicateSubscription = errors.New("an active subscription for this course and index already exists")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
)

// VacancySource is the slice of the source client the front-end consumes.
// Browse-mode reads share the client's service-hours gate and cooldown with
// the checking cycle but never touch persisted state.
type VacancySource interface {
	FetchCourse(ctx context.Context, courseCode string) ([]vacancy.Record, error)
	FetchIndex(ctx context.Context, courseCode, indexNumber string) (*vacancy.Record, error)
}

// Service owns subscriber and subscription lifecycle. It creates and
// deactivates subscriptions; the vacancy-state columns belong to the checker.
type Service struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *gorm.DB
	source VacancySource
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB, source *vacancy.Client) *Service {
	return &Service{cfg, log, db, source}
}

// RegisterSubscriber creates a subscriber for a delivery platform, or
// reactivates the existing one for the same identifier.
func (svc *Service) RegisterSubscriber(ctx context.Context, platform, identifier string) (*models.Subscriber, error) {
	subscriber := models.Subscriber{}
	tx := svc.db.WithContext(ctx).
		Where("platform = ?", platform).
		Where("platform_identifier = ?", identifier).
		First(&subscriber)

	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		subscriber = models.Subscriber{Platform: platform, PlatformIdentifier: identifier, Active: true}
		if err := svc.db.WithContext(ctx).Create(&subscriber).Error; err != nil {
			return nil, err
		}
		svc.log.Sugar().Infof("Registered subscriber %v on %s", subscriber.ID, platform)
		return &subscriber, nil
	} else if err != nil {
		return nil, err
	}

	if !subscriber.Active {
		tx = svc.db.WithContext(ctx).Model(&subscriber).Update("active", true)
		if err := tx.Error; err != nil {
			return nil, err
		}
	}
	return &subscriber, nil
}

// Subscribe creates a subscription after checking the index actually exists
// upstream. The last-known vacancy count is seeded as unknown, so the first
// cycle observes without notifying. Returns the record observed during
// validation so callers can show the current state.
func (svc *Service) Subscribe(ctx context.Context, subscriberID uint, courseCode, indexNumber string) (*models.Subscription, *vacancy.Record, error) {
	courseCode = vacancy.NormalizeCourseCode(courseCode)
	indexNumber = vacancy.NormalizeIndexNumber(indexNumber)

	subscriber := models.Subscriber{}
	tx := svc.db.WithContext(ctx).
		Where("id = ?", subscriberID).
		Where("active = ?", true).
		First(&subscriber)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrSubscriberNotFound
	} else if err != nil {
		return nil, nil, err
	}

	var count int64
	tx = svc.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("subscriber_id = ?", subscriberID).
		Where("course_code = ?", courseCode).
		Where("index_number = ?", indexNumber).
		Where("active = ?", true).
		Count(&count)
	if err := tx.Error; err != nil {
		return nil, nil, err
	}
	if count > 0 {
		return nil, nil, ErrDuplicateSubscription
	}

	record, err := svc.source.FetchIndex(ctx, courseCode, indexNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("validate %s/%s: %w", courseCode, indexNumber, err)
	}

	subscription := models.Subscription{
		SubscriberID:     subscriberID,
		CourseCode:       courseCode,
		IndexNumber:      indexNumber,
		Active:           true,
		LastVacancyCount: sql.NullInt64{},
	}
	if err := svc.db.WithContext(ctx).Create(&subscription).Error; err != nil {
		return nil, nil, err
	}

	svc.log.Sugar().Infof("Created subscription id:%v for %s/%s", subscription.ID, courseCode, indexNumber)
	return &subscription, record, nil
}

// Unsubscribe soft-deletes one subscription owned by the subscriber.
func (svc *Service) Unsubscribe(ctx context.Context, subscriberID, subscriptionID uint) error {
	tx := svc.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Where("subscriber_id = ?", subscriberID).
		Where("active = ?", true).
		Update("active", false)
	if err := tx.Error; err != nil {
		return err
	}
	if tx.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// OptOut deactivates every active subscription of a subscriber. Returns how
// many were deactivated.
func (svc *Service) OptOut(ctx context.Context, subscriberID uint) (int64, error) {
	tx := svc.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("subscriber_id = ?", subscriberID).
		Where("active = ?", true).
		Update("active", false)
	if err := tx.Error; err != nil {
		return 0, err
	}
	svc.log.Sugar().Infof("Subscriber %v opted out of %d subscriptions", subscriberID, tx.RowsAffected)
	return tx.RowsAffected, nil
}

func (svc *Service) ListSubscriptions(ctx context.Context, subscriberID uint) (models.Subscriptions, error) {
	var subscriptions models.Subscriptions
	tx := svc.db.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Where("active = ?", true).
		Order("created_at asc").
		Find(&subscriptions)
	return subscriptions, tx.Error
}

// History returns the most recent check records of one subscription.
func (svc *Service) History(ctx context.Context, subscriberID, subscriptionID uint, limit int) (models.HistoryEntries, error) {
	if limit <= 0 {
		limit = 10
	}

	var entries models.HistoryEntries
	tx := svc.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Where("subscriber_id = ?", subscriberID).
		Order("checked_at desc").
		Limit(limit).
		Find(&entries)
	return entries, tx.Error
}

// BrowseCourse fetches live vacancies for a course without touching any
// persisted state. Contends for the same cooldown budget as the cycle.
func (svc *Service) BrowseCourse(ctx context.Context, courseCode string) ([]vacancy.Record, error) {
	return svc.source.FetchCourse(ctx, courseCode)
}
