package notify

import (
	"context"
	"fmt"

	"github.com/gigroom/gigroom/internal/models"
)

// NotifyNewMessage tells the other participant of room that sender posted.
// room must have Organizer and Vendor loaded.
func (s *Service) NotifyNewMessage(ctx context.Context, room *models.Room, senderID uint, text string) (*models.Notification, error) {
	sender, recipient := room.Organizer, room.Vendor
	if senderID == room.VendorID {
		sender, recipient = room.Vendor, room.Organizer
	}
	if sender == nil || recipient == nil {
		return nil, fmt.Errorf("notify: new message: room %d participants not loaded", room.ID)
	}

	body := truncate(text, 100)
	if body == "" {
		body = "Sent an attachment"
	}
	return s.Create(ctx, Params{
		RecipientID: recipient.ID,
		SenderID:    &sender.ID,
		Type:        models.NotifyNewMessage,
		Title:       fmt.Sprintf("New message from %s", sender.Username),
		Message:     body,
		LinkType:    LinkChat,
		LinkID:      &room.ID,
	})
}

// NotifyNewBid tells the vendor of room about a new bid.
func (s *Service) NotifyNewBid(ctx context.Context, room *models.Room, bid *models.Bid) (*models.Notification, error) {
	if room.Organizer == nil || room.Vendor == nil {
		return nil, fmt.Errorf("notify: new bid: room %d participants not loaded", room.ID)
	}
	return s.Create(ctx, Params{
		RecipientID: room.VendorID,
		SenderID:    &room.OrganizerID,
		Type:        models.NotifyNewBid,
		Title:       fmt.Sprintf("New bid from %s", room.Organizer.Username),
		Message:     fmt.Sprintf("Bid amount: %s %s", bid.Currency, bid.Amount),
		LinkType:    LinkChat,
		LinkID:      &room.ID,
		Data:        map[string]any{"bid_id": bid.ID, "amount": bid.Amount.String()},
	})
}

var responseTypes = map[models.BidStatus]models.NotificationType{
	models.BidAccepted:  models.NotifyBidAccepted,
	models.BidDeclined:  models.NotifyBidDeclined,
	models.BidCountered: models.NotifyBidCountered,
}

// NotifyBidResponse tells the organizer of room how the vendor answered bid.
// bid.Status must already hold the new state.
func (s *Service) NotifyBidResponse(ctx context.Context, room *models.Room, bid *models.Bid) (*models.Notification, error) {
	nt, ok := responseTypes[bid.Status]
	if !ok {
		return nil, fmt.Errorf("notify: bid response: bid %d is %s", bid.ID, bid.Status)
	}
	if room.Vendor == nil {
		return nil, fmt.Errorf("notify: bid response: room %d participants not loaded", room.ID)
	}

	action := string(bid.Status)
	msg := fmt.Sprintf("Your bid of %s %s was %s", bid.Currency, bid.Amount, action)
	if bid.Status == models.BidCountered && bid.CounterAmount != nil {
		msg += fmt.Sprintf(" with %s %s", bid.Currency, *bid.CounterAmount)
	}
	return s.Create(ctx, Params{
		RecipientID: room.OrganizerID,
		SenderID:    &room.VendorID,
		Type:        nt,
		Title:       fmt.Sprintf("Bid %s by %s", action, room.Vendor.Username),
		Message:     msg,
		LinkType:    LinkChat,
		LinkID:      &room.ID,
		Data:        map[string]any{"bid_id": bid.ID},
	})
}

// BookingParams describes a booking event raised outside the chat flow.
type BookingParams struct {
	Recipient *models.User
	Sender    *models.User // optional
	BookingID uint
	Confirmed bool
	Note      string
}

// NotifyBooking records a booking_request or booking_confirmed notification
// linking to the booking.
func (s *Service) NotifyBooking(ctx context.Context, p BookingParams) (*models.Notification, error) {
	if p.Recipient == nil {
		return nil, fmt.Errorf("notify: booking: recipient is required")
	}
	from := "a client"
	var senderID *uint
	if p.Sender != nil {
		from = p.Sender.Username
		senderID = &p.Sender.ID
	}

	nt := models.NotifyBookingRequest
	title := fmt.Sprintf("New booking request from %s", from)
	if p.Confirmed {
		nt = models.NotifyBookingConfirmed
		title = fmt.Sprintf("Booking confirmed by %s", from)
	}
	return s.Create(ctx, Params{
		RecipientID: p.Recipient.ID,
		SenderID:    senderID,
		Type:        nt,
		Title:       title,
		Message:     p.Note,
		LinkType:    LinkBooking,
		LinkID:      &p.BookingID,
		Data:        map[string]any{"booking_id": p.BookingID},
	})
}
