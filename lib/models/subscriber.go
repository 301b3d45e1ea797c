package models

import (
	"gorm.io/gorm"
)

// Delivery platforms registered in senders.Registry.
const (
	PlatformTelegram = "telegram"
	PlatformEmail    = "email"
)

type Subscriber struct {
	gorm.Model
	Platform           string `gorm:"index:idx_platform_identifier,unique"`
	PlatformIdentifier string `gorm:"index:idx_platform_identifier,unique"`
	Active             bool

	Subscriptions []Subscription
}

type Subscribers []Subscriber
