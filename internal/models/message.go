package models

import "time"

// MessageType is the closed set of message variants.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
	MessageBid    MessageType = "bid"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageSystem, MessageBid:
		return true
	}
	return false
}

// Message is one entry in a room. DeliveredAt and ReadAt start nil and are
// set at most once.
type Message struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID      uint        `gorm:"not null;index:idx_message_room_created,priority:1" json:"room"`
	SenderID    uint        `gorm:"not null" json:"sender"`
	Text        string      `gorm:"type:text" json:"text"`
	TipAmount   *Amount     `json:"tip_amount"`
	MessageType MessageType `gorm:"size:16;not null;default:text" json:"message_type"`
	BidID       *uint       `gorm:"index" json:"bid"`
	CreatedAt   time.Time   `gorm:"index:idx_message_room_created,priority:2" json:"created_at"`
	DeliveredAt *time.Time  `json:"delivered_at"`
	ReadAt      *time.Time  `json:"read_at"`

	Room        *Room        `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
	Sender      *User        `gorm:"foreignKey:SenderID" json:"-"`
	Bid         *Bid         `gorm:"foreignKey:BidID;constraint:OnDelete:SET NULL" json:"-"`
	Attachments []Attachment `gorm:"many2many:message_attachments;constraint:OnDelete:CASCADE" json:"attachments"`
}

// Attachment is an uploaded file. It is created before the message that
// carries it and may only be referenced by messages of the same room.
type Attachment struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID       uint      `gorm:"not null;index" json:"room"`
	UploadedBy   uint      `gorm:"not null" json:"uploaded_by"`
	StorageKey   string    `gorm:"size:255;not null" json:"-"`
	URL          string    `gorm:"size:512;not null" json:"file"`
	OriginalName string    `gorm:"size:255" json:"original_name"`
	Size         int64     `json:"size"`
	ContentType  string    `gorm:"size:128" json:"content_type"`
	UploadedAt   time.Time `gorm:"autoCreateTime" json:"uploaded_at"`

	Room *Room `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
}
