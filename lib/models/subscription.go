package models

import (
	"database/sql"

	"gorm.io/gorm"
)

// Subscription is one subscriber's standing interest in a (course, index)
// pair. LastVacancyCount is NULL until the first successful check; the
// checking engine owns every write to the Last* columns.
type Subscription struct {
	gorm.Model
	SubscriberID     uint
	CourseCode       string `gorm:"index:idx_course_index"` // Composite index on course & index number
	IndexNumber      string `gorm:"index:idx_course_index"`
	Active           bool
	LastVacancyCount sql.NullInt64
	LastCheckedAt    sql.NullTime

	Subscriber Subscriber
}

type Subscriptions []Subscription
