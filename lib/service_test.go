package lib

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"seatwatch/config"
	"seatwatch/lib/models"
	"seatwatch/lib/vacancy"
)

type stubSource struct {
	records map[string]*vacancy.Record
	err     error
	calls   []string
}

func (s *stubSource) FetchCourse(ctx context.Context, courseCode string) ([]vacancy.Record, error) {
	s.calls = append(s.calls, courseCode)
	if s.err != nil {
		return nil, s.err
	}
	var records []vacancy.Record
	for _, record := range s.records {
		records = append(records, *record)
	}
	return records, nil
}

func (s *stubSource) FetchIndex(ctx context.Context, courseCode, indexNumber string) (*vacancy.Record, error) {
	s.calls = append(s.calls, courseCode+"/"+indexNumber)
	if s.err != nil {
		return nil, s.err
	}
	record, ok := s.records[courseCode+"/"+indexNumber]
	if !ok {
		return nil, vacancy.ErrIndexNotFound
	}
	return record, nil
}

func setupService(t *testing.T, source *stubSource) *Service {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Subscriber{},
		&models.Subscription{},
		&models.HistoryEntry{},
	))
	return &Service{&config.Config{}, zap.NewNop(), db, source}
}

func TestRegisterSubscriber(t *testing.T) {
	svc := setupService(t, &stubSource{})
	ctx := context.Background()

	subscriber, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)
	assert.True(t, subscriber.Active)

	// Registering the same identifier again returns the same row.
	again, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)
	assert.Equal(t, subscriber.ID, again.ID)

	// The same identifier on a different platform is a distinct subscriber.
	other, err := svc.RegisterSubscriber(ctx, models.PlatformEmail, "1000")
	require.NoError(t, err)
	assert.NotEqual(t, subscriber.ID, other.ID)
}

func TestRegisterSubscriberReactivates(t *testing.T) {
	svc := setupService(t, &stubSource{})
	ctx := context.Background()

	subscriber, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(subscriber).Update("active", false).Error)

	reactivated, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)
	assert.Equal(t, subscriber.ID, reactivated.ID)
	assert.True(t, reactivated.Active)
}

func TestSubscribe(t *testing.T) {
	source := &stubSource{records: map[string]*vacancy.Record{
		"SC2103/10294": {IndexNumber: "10294", Vacancies: 3, Waitlist: 1},
	}}
	svc := setupService(t, source)
	ctx := context.Background()

	subscriber, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)

	// Course codes and index numbers get normalized before anything else.
	sub, record, err := svc.Subscribe(ctx, subscriber.ID, " sc2103 ", " 10294 ")
	require.NoError(t, err)
	assert.Equal(t, "SC2103", sub.CourseCode)
	assert.Equal(t, "10294", sub.IndexNumber)
	assert.False(t, sub.LastVacancyCount.Valid)
	require.NotNil(t, record)
	assert.Equal(t, 3, record.Vacancies)
	assert.Equal(t, []string{"SC2103/10294"}, source.calls)
}

func TestSubscribeDuplicate(t *testing.T) {
	source := &stubSource{records: map[string]*vacancy.Record{
		"SC2103/10294": {IndexNumber: "10294", Vacancies: 3},
	}}
	svc := setupService(t, source)
	ctx := context.Background()

	subscriber, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)

	_, _, err = svc.Subscribe(ctx, subscriber.ID, "SC2103", "10294")
	require.NoError(t, err)

	_, _, err = svc.Subscribe(ctx, subscriber.ID, "sc2103", "10294")
	assert.ErrorIs(t, err, ErrDuplicateSubscription)

	// A different index of the same course is fine to track separately.
	source.records["SC2103/10295"] = &vacancy.Record{IndexNumber: "10295"}
	_, _, err = svc.Subscribe(ctx, subscriber.ID, "SC2103", "10295")
	assert.NoError(t, err)
}

func TestSubscribeUnknownSubscriber(t *testing.T) {
	svc := setupService(t, &stubSource{})

	_, _, err := svc.Subscribe(context.Background(), 9999, "SC2103", "10294")
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestSubscribeIndexNotFound(t *testing.T) {
	source := &stubSource{records: map[string]*vacancy.Record{}}
	svc := setupService(t, source)
	ctx := context.Background()

	subscriber, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)

	_, _, err = svc.Subscribe(ctx, subscriber.ID, "SC2103", "99999")
	assert.ErrorIs(t, err, vacancy.ErrIndexNotFound)

	// Validation failure must not leave a half-created subscription behind.
	subs, err := svc.ListSubscriptions(ctx, subscriber.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestUnsubscribe(t *testing.T) {
	source := &stubSource{records: map[string]*vacancy.Record{
		"SC2103/10294": {IndexNumber: "10294"},
	}}
	svc := setupService(t, source)
	ctx := context.Background()

	subscriber, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)
	sub, _, err := svc.Subscribe(ctx, subscriber.ID, "SC2103", "10294")
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, subscriber.ID, sub.ID))

	subs, err := svc.ListSubscriptions(ctx, subscriber.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	// Already gone, and not unsubscribable by a different subscriber either.
	assert.ErrorIs(t, svc.Unsubscribe(ctx, subscriber.ID, sub.ID), ErrSubscriptionNotFound)
	assert.ErrorIs(t, svc.Unsubscribe(ctx, subscriber.ID+1, sub.ID), ErrSubscriptionNotFound)
}

func TestOptOut(t *testing.T) {
	source := &stubSource{records: map[string]*vacancy.Record{
		"SC2103/10294": {IndexNumber: "10294"},
		"SC2103/10295": {IndexNumber: "10295"},
	}}
	svc := setupService(t, source)
	ctx := context.Background()

	subscriber, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)
	_, _, err = svc.Subscribe(ctx, subscriber.ID, "SC2103", "10294")
	require.NoError(t, err)
	_, _, err = svc.Subscribe(ctx, subscriber.ID, "SC2103", "10295")
	require.NoError(t, err)

	deactivated, err := svc.OptOut(ctx, subscriber.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deactivated)

	deactivated, err = svc.OptOut(ctx, subscriber.ID)
	require.NoError(t, err)
	assert.Zero(t, deactivated)
}

func TestHistory(t *testing.T) {
	source := &stubSource{records: map[string]*vacancy.Record{
		"SC2103/10294": {IndexNumber: "10294"},
	}}
	svc := setupService(t, source)
	ctx := context.Background()

	subscriber, err := svc.RegisterSubscriber(ctx, models.PlatformTelegram, "1000")
	require.NoError(t, err)
	sub, _, err := svc.Subscribe(ctx, subscriber.ID, "SC2103", "10294")
	require.NoError(t, err)

	base := time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		entry := models.HistoryEntry{
			CycleID:        "cycle",
			SubscriptionID: sub.ID,
			SubscriberID:   subscriber.ID,
			CourseCode:     sub.CourseCode,
			IndexNumber:    sub.IndexNumber,
			VacancyCount:   i,
			Outcome:        models.OutcomeChecked,
			CheckedAt:      base.Add(time.Duration(i) * 5 * time.Minute),
		}
		require.NoError(t, svc.db.Create(&entry).Error)
	}

	// Default limit, newest first.
	entries, err := svc.History(ctx, subscriber.ID, sub.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	assert.Equal(t, 14, entries[0].VacancyCount)

	entries, err = svc.History(ctx, subscriber.ID, sub.ID, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Scoped to the owning subscriber.
	entries, err = svc.History(ctx, subscriber.ID+1, sub.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
