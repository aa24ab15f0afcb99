package models

import (
	"fmt"
	"time"
)

// Room is the single persistent channel between one organizer and one vendor.
// PairKey holds the unordered pair so the same two users can never end up
// with two rooms, whichever side created it.
type Room struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrganizerID uint      `gorm:"not null;uniqueIndex:ux_room_pair,priority:1" json:"organizer"`
	VendorID    uint      `gorm:"not null;uniqueIndex:ux_room_pair,priority:2;index" json:"vendor"`
	PairKey     string    `gorm:"size:41;not null;uniqueIndex" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `gorm:"index" json:"updated_at"`

	Organizer *User     `gorm:"foreignKey:OrganizerID" json:"-"`
	Vendor    *User     `gorm:"foreignKey:VendorID" json:"-"`
	Messages  []Message `gorm:"foreignKey:RoomID" json:"messages,omitempty"`
}

// PairKey returns the order-independent key for two user ids.
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// HasParticipant reports whether userID is the organizer or the vendor.
func (r *Room) HasParticipant(userID uint) bool {
	return userID != 0 && (r.OrganizerID == userID || r.VendorID == userID)
}

// Counterpart returns the other participant's id, or 0 if userID is not in
// the room.
func (r *Room) Counterpart(userID uint) uint {
	switch userID {
	case r.OrganizerID:
		return r.VendorID
	case r.VendorID:
		return r.OrganizerID
	}
	return 0
}
