package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotifyNewMessage       NotificationType = "new_message"
	NotifyNewBid           NotificationType = "new_bid"
	NotifyBidAccepted      NotificationType = "bid_accepted"
	NotifyBidDeclined      NotificationType = "bid_declined"
	NotifyBidCountered     NotificationType = "bid_countered"
	NotifyBookingRequest   NotificationType = "booking_request"
	NotifyBookingConfirmed NotificationType = "booking_confirmed"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotifyNewMessage, NotifyNewBid, NotifyBidAccepted, NotifyBidDeclined,
		NotifyBidCountered, NotifyBookingRequest, NotifyBookingConfirmed:
		return true
	}
	return false
}

// Notification is addressed to exactly one recipient. Only the recipient
// mutates its read state.
type Notification struct {
	ID               uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientID      uint              `gorm:"not null;index:idx_notification_recipient_read,priority:1;index:idx_notification_recipient_created,priority:1" json:"recipient"`
	SenderID         *uint             `json:"sender"`
	NotificationType NotificationType  `gorm:"size:32;not null" json:"notification_type"`
	Title            string            `gorm:"size:255;not null" json:"title"`
	Message          string            `gorm:"type:text" json:"message"`
	LinkType         string            `gorm:"size:32" json:"link_type"`
	LinkID           *uint             `json:"link_id"`
	Data             datatypes.JSONMap `json:"data"`
	IsRead           bool              `gorm:"not null;default:false;index:idx_notification_recipient_read,priority:2" json:"is_read"`
	ReadAt           *time.Time        `json:"read_at"`
	CreatedAt        time.Time         `gorm:"index:idx_notification_recipient_created,priority:2" json:"created_at"`

	Sender   *User  `gorm:"foreignKey:SenderID" json:"-"`
	DeepLink string `gorm:"-" json:"deep_link"`
}
