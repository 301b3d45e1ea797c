package app

import (
	"database/sql"
	"time"

	"seatwatch/lib/models"
	"seatwatch/lib/vacancy"
)

type SubscriberView struct {
	ID         uint   `json:"id"`
	Platform   string `json:"platform"`
	Identifier string `json:"identifier"`
	Active     bool   `json:"active"`
}

func (view SubscriberView) From(entity *models.Subscriber) SubscriberView {
	return SubscriberView{
		ID:         entity.ID,
		Platform:   entity.Platform,
		Identifier: entity.PlatformIdentifier,
		Active:     entity.Active,
	}
}

type SubscriptionView struct {
	ID               uint    `json:"id"`
	SubscriberID     uint    `json:"subscriber_id"`
	CourseCode       string  `json:"course_code"`
	IndexNumber      string  `json:"index_number"`
	Active           bool    `json:"active"`
	LastVacancyCount *int64  `json:"last_vacancy_count"`
	LastCheckedAt    *string `json:"last_checked_at"`
}

func (view SubscriptionView) From(entity *models.Subscription) SubscriptionView {
	var lastCount *int64
	if entity.LastVacancyCount.Valid {
		count := entity.LastVacancyCount.Int64
		lastCount = &count
	}
	return SubscriptionView{
		ID:               entity.ID,
		SubscriberID:     entity.SubscriberID,
		CourseCode:       entity.CourseCode,
		IndexNumber:      entity.IndexNumber,
		Active:           entity.Active,
		LastVacancyCount: lastCount,
		LastCheckedAt:    isoformat(entity.LastCheckedAt),
	}
}

type HistoryView struct {
	CycleID          string `json:"cycle_id"`
	CourseCode       string `json:"course_code"`
	IndexNumber      string `json:"index_number"`
	VacancyCount     int    `json:"vacancy_count"`
	WaitlistCount    int    `json:"waitlist_count"`
	Outcome          string `json:"outcome"`
	NotificationSent bool   `json:"notification_sent"`
	CheckedAt        string `json:"checked_at"`
}

func (view HistoryView) From(entity *models.HistoryEntry) HistoryView {
	return HistoryView{
		CycleID:          entity.CycleID,
		CourseCode:       entity.CourseCode,
		IndexNumber:      entity.IndexNumber,
		VacancyCount:     entity.VacancyCount,
		WaitlistCount:    entity.WaitlistCount,
		Outcome:          entity.Outcome,
		NotificationSent: entity.NotificationSent,
		CheckedAt:        entity.CheckedAt.UTC().Format(time.RFC3339),
	}
}

type RecordView struct {
	IndexNumber string      `json:"index_number"`
	Vacancies   int         `json:"vacancies"`
	Waitlist    int         `json:"waitlist"`
	Classes     []ClassView `json:"classes"`
}

type ClassView struct {
	Type   string `json:"type"`
	Group  string `json:"group"`
	Day    string `json:"day"`
	Time   string `json:"time"`
	Venue  string `json:"venue"`
	Remark string `json:"remark,omitempty"`
}

func (view RecordView) From(entity *vacancy.Record) RecordView {
	classes := make([]ClassView, len(entity.Classes))
	for i, class := range entity.Classes {
		classes[i] = ClassView{
			Type:   class.Type,
			Group:  class.Group,
			Day:    class.Day,
			Time:   class.Time,
			Venue:  class.Venue,
			Remark: class.Remark,
		}
	}
	return RecordView{
		IndexNumber: entity.IndexNumber,
		Vacancies:   entity.Vacancies,
		Waitlist:    entity.Waitlist,
		Classes:     classes,
	}
}

func isoformat(t sql.NullTime) *string {
	if !t.Valid {
		return nil
	}
	formatted := t.Time.UTC().Format(time.RFC3339)
	return &formatted
}
