package models

import "time"

// BidStatus is the negotiation state of a bid.
type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidDeclined  BidStatus = "declined"
	BidCountered BidStatus = "countered"
)

// Bid is a priced offer from the room's organizer to its vendor. The
// (organizer, vendor, idempotency key) triple is unique so a replayed create
// resolves to the first row.
type Bid struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID         uint      `gorm:"not null;index" json:"room"`
	OrganizerID    uint      `gorm:"not null;uniqueIndex:ux_bid_idempotency,priority:1" json:"organizer"`
	VendorID       uint      `gorm:"not null;uniqueIndex:ux_bid_idempotency,priority:2" json:"vendor"`
	Amount         Amount    `gorm:"not null" json:"amount"`
	Currency       string    `gorm:"size:8;not null;default:USD" json:"currency"`
	Tier           string    `gorm:"size:64" json:"tier"`
	Notes          string    `gorm:"type:text" json:"notes"`
	Status         BidStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	CounterAmount  *Amount   `json:"counter_amount"`
	IdempotencyKey string    `gorm:"size:64;not null;uniqueIndex:ux_bid_idempotency,priority:3" json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Room      *Room `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
	Organizer *User `gorm:"foreignKey:OrganizerID" json:"-"`
	Vendor    *User `gorm:"foreignKey:VendorID" json:"-"`
}
