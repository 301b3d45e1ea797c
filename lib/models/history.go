package models

import "time"

const (
	OutcomeChecked = "checked"
	OutcomeFailed  = "failed"
)

// HistoryEntry is an append-only audit record of one check of one
// subscription. Never mutated after insert. Failed checks are recorded too so
// gaps in coverage stay visible.
type HistoryEntry struct {
	ID               uint   `gorm:"primarykey"`
	CycleID          string `gorm:"index"`
	SubscriptionID   uint   `gorm:"index:idx_subscription_checked"`
	SubscriberID     uint
	CourseCode       string
	IndexNumber      string
	VacancyCount     int
	WaitlistCount    int
	Outcome          string
	NotificationSent bool
	CheckedAt        time.Time `gorm:"index:idx_subscription_checked"`
}

type HistoryEntries []HistoryEntry
