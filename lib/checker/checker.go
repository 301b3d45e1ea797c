package checker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"seatwatch/config"
	"seatwatch/lib/models"
	"seatwatch/lib/vacancy"
)

// Fetcher is the slice of the source client the cycle consumes.
type Fetcher interface {
	FetchIndex(ctx context.Context, courseCode, indexNumber string) (*vacancy.Record, error)
}

func New(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, store Store, client *vacancy.Client, dispatcher *Dispatcher) *Checker {
	checker := newChecker(cfg, log, store, client, dispatcher)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go checker.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop checker")
			checker.Stop()
			return nil
		},
	})

	return checker
}

func newChecker(cfg *config.Config, log *zap.Logger, store Store, source Fetcher, dispatcher *Dispatcher) *Checker {
	return &Checker{
		log:        log,
		store:      store,
		source:     source,
		dispatcher: dispatcher,

		interval:                 cfg.CheckInterval(),
		notifyOnFirstObservation: cfg.NotifyOnFirstObservation,
		now:                      time.Now,
	}
}

// Checker runs the checking cycle on a fixed interval: rebuild the
// subscription index, query each distinct key once, diff against last-known
// state, persist, then dispatch. Keys are checked sequentially -- the source
// client's shared cooldown dominates cycle latency, so parallelism would buy
// nothing.
type Checker struct {
	log        *zap.Logger
	store      Store
	source     Fetcher
	dispatcher *Dispatcher

	mu     sync.Mutex
	cancel context.CancelFunc

	interval                 time.Duration
	notifyOnFirstObservation bool
	now                      func() time.Time
}

type cycleMetrics struct {
	subscriptions  int
	keys           int
	checked        int
	notified       int
	failed         int
	deliveryFailed int
}

func (c *Checker) tickerWithImmediateTick(interval time.Duration) *time.Ticker {
	withImmediateTick := make(chan time.Time, 1)

	ticker := time.NewTicker(interval)
	tickerC := ticker.C
	go func() {
		withImmediateTick <- time.Now()
		for t := range tickerC {
			withImmediateTick <- t
		}
	}()

	ticker.C = withImmediateTick
	return ticker
}

func (c *Checker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	ticker := c.tickerWithImmediateTick(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Locking here to wait for the in-flight cycle to finish
			c.mu.Lock()
			c.log.Sugar().Info("Checker stopped")
			c.mu.Unlock()
			return

		case wakeTime := <-ticker.C:
			c.RunCycle(ctx, wakeTime.UTC())
		}
	}
}

func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// RunCycle performs one full pass over all tracked keys. A store read failure
// aborts the cycle (retried at the next tick); per-key failures never do.
func (c *Checker) RunCycle(ctx context.Context, startedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cycleID := uuid.NewString()

	subs, err := c.store.ListActiveSubscriptions(ctx)
	if err != nil {
		c.log.Sugar().Errorw("Unable to list subscriptions, skipping cycle", "cycle_id", cycleID, "err", err)
		return
	}

	index := BuildIndex(subs)
	if len(index) == 0 {
		c.log.Sugar().Debug("No active subscriptions to check")
		return
	}

	metrics := &cycleMetrics{subscriptions: len(subs), keys: len(index)}
	var events []Event

keys:
	for _, key := range sortedKeys(index) {
		if ctx.Err() != nil {
			break
		}

		record, err := c.source.FetchIndex(ctx, key.CourseCode, key.IndexNumber)
		switch {
		case errors.Is(err, vacancy.ErrOutOfServiceHours):
			c.log.Sugar().Infow("Source outside service hours, skipping remaining keys", "cycle_id", cycleID)
			break keys

		case err != nil:
			c.log.Sugar().Warnw("Check failed", "cycle_id", cycleID, "key", key.String(), "err", err)
			c.recordFailedCheck(ctx, cycleID, key, index[key])
			metrics.failed++
			continue
		}

		events = append(events, c.applyRecord(ctx, cycleID, key, index[key], record, metrics)...)
	}

	for _, event := range events {
		if err := c.dispatcher.Dispatch(ctx, event); err != nil {
			metrics.deliveryFailed++
		}
	}

	c.logCycle(cycleID, startedAt, metrics)
}

// applyRecord diffs the new record against every subscription of the key,
// persists state and history, and returns the notification events to queue.
// State is persisted before any dispatch happens; a subscription whose state
// write fails is not notified, so a send can never precede its own record.
func (c *Checker) applyRecord(ctx context.Context, cycleID string, key Key, subs models.Subscriptions, record *vacancy.Record, metrics *cycleMetrics) []Event {
	checkedAt := c.now().UTC()

	var events []Event
	for _, sub := range subs {
		notify := c.shouldNotify(sub, record.Vacancies)

		if err := c.store.UpdateSubscriptionState(ctx, sub.ID, record.Vacancies, checkedAt); err != nil {
			c.log.Sugar().Errorw("Failed to persist subscription state",
				"cycle_id", cycleID, "subscription_id", sub.ID, "err", err)
			metrics.failed++
			continue
		}

		entry := &models.HistoryEntry{
			CycleID:          cycleID,
			SubscriptionID:   sub.ID,
			SubscriberID:     sub.SubscriberID,
			CourseCode:       key.CourseCode,
			IndexNumber:      key.IndexNumber,
			VacancyCount:     record.Vacancies,
			WaitlistCount:    record.Waitlist,
			Outcome:          models.OutcomeChecked,
			NotificationSent: notify,
			CheckedAt:        checkedAt,
		}
		if err := c.store.AppendHistory(ctx, entry); err != nil {
			c.log.Sugar().Errorw("Failed to append history",
				"cycle_id", cycleID, "subscription_id", sub.ID, "err", err)
		}

		metrics.checked++
		if notify {
			metrics.notified++
			events = append(events, Event{Subscription: sub, Record: *record})
		}
	}

	return events
}

// shouldNotify implements the transition rule: fire iff the previous count
// was an observed zero and the new count is positive. An unknown previous
// state counts as non-zero unless notifyOnFirstObservation is set.
func (c *Checker) shouldNotify(sub models.Subscription, newCount int) bool {
	if newCount <= 0 {
		return false
	}
	if !sub.LastVacancyCount.Valid {
		return c.notifyOnFirstObservation
	}
	return sub.LastVacancyCount.Int64 == 0
}

// recordFailedCheck writes a failed-check history row per subscription of the
// key. Vacancy state is left untouched so the next successful check diffs
// against the last real observation.
func (c *Checker) recordFailedCheck(ctx context.Context, cycleID string, key Key, subs models.Subscriptions) {
	checkedAt := c.now().UTC()

	for _, sub := range subs {
		entry := &models.HistoryEntry{
			CycleID:        cycleID,
			SubscriptionID: sub.ID,
			SubscriberID:   sub.SubscriberID,
			CourseCode:     key.CourseCode,
			IndexNumber:    key.IndexNumber,
			Outcome:        models.OutcomeFailed,
			CheckedAt:      checkedAt,
		}
		if err := c.store.AppendHistory(ctx, entry); err != nil {
			c.log.Sugar().Errorw("Failed to append failed-check history",
				"cycle_id", cycleID, "subscription_id", sub.ID, "err", err)
		}
	}
}

func (c *Checker) logCycle(cycleID string, startedAt time.Time, metrics *cycleMetrics) {
	args := []any{
		"cycle_id", cycleID,
		"subscriptions", metrics.subscriptions,
		"keys", metrics.keys,
		"checked", metrics.checked,
	}
	if metrics.notified != 0 {
		args = append(args, "notified", metrics.notified)
	}
	if metrics.failed != 0 {
		args = append(args, "failed", metrics.failed)
	}
	if metrics.deliveryFailed != 0 {
		args = append(args, "delivery_failed", metrics.deliveryFailed)
	}

	elapsed := time.Now().UTC().Sub(startedAt)
	args = append(args, "elapsed_msecs", int(elapsed.Milliseconds()))

	c.log.Sugar().Infow("Cycle completed", args...)
}
