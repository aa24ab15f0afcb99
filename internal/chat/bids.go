package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gigroom/gigroom/internal/db"
	"github.com/gigroom/gigroom/internal/models"
	"gorm.io/gorm"
)

const (
	maxIdempotencyKey = 64
	maxCurrency       = 8
	maxTier           = 64
	defaultCurrency   = "USD"
)

// BidInput is the client-supplied part of a new bid.
type BidInput struct {
	Amount         models.Amount
	Currency       string
	Tier           string
	Notes          string
	IdempotencyKey string
}

// CreateBid opens a bid in the room on behalf of its organizer. A repeated
// idempotency key for the same pair returns the original bid with created
// false and produces no further side effects.
func (s *Service) CreateBid(ctx context.Context, actor *auth.Principal, roomID uint, in BidInput) (*models.Bid, bool, error) {
	room, err := s.roomFor(ctx, actor, roomID)
	if err != nil {
		return nil, false, err
	}
	if actor.ID != room.OrganizerID {
		return nil, false, apperr.Forbidden("Only organizers can initiate bids.")
	}

	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.IdempotencyKey == "" {
		return nil, false, apperr.Field("idempotency_key", "This field is required.")
	}
	if len(in.IdempotencyKey) > maxIdempotencyKey {
		return nil, false, apperr.Field("idempotency_key", fmt.Sprintf("Ensure this field has no more than %d characters.", maxIdempotencyKey))
	}

	if existing, err := s.bidByKey(ctx, room, in.IdempotencyKey); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if in.Amount <= 0 {
		return nil, false, apperr.Field("amount", "Amount must be greater than zero.")
	}
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	if len(in.Currency) > maxCurrency {
		return nil, false, apperr.Field("currency", fmt.Sprintf("Ensure this field has no more than %d characters.", maxCurrency))
	}
	in.Tier = strings.TrimSpace(in.Tier)
	if len(in.Tier) > maxTier {
		return nil, false, apperr.Field("tier", fmt.Sprintf("Ensure this field has no more than %d characters.", maxTier))
	}

	now := s.now()
	bid := models.Bid{
		RoomID:         roomID,
		OrganizerID:    room.OrganizerID,
		VendorID:       room.VendorID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		Tier:           in.Tier,
		Notes:          in.Notes,
		Status:         models.BidPending,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var msg models.Message
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Room", "Organizer", "Vendor").Create(&bid).Error; err != nil {
			return err
		}
		msg = bidMessage(&bid, actor.ID, "Bid pending", now)
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return bumpRoom(tx, roomID, now)
	})
	if err != nil {
		if db.IsDuplicate(err) {
			existing, rerr := s.bidByKey(ctx, room, in.IdempotencyKey)
			if rerr != nil {
				return nil, false, rerr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("chat: create bid: %w", err)
	}
	bid.Organizer, bid.Vendor = room.Organizer, room.Vendor
	msg.Sender = participant(room, actor.ID)

	s.log.Info("chat: bid created", "room_id", roomID, "bid_id", bid.ID, "amount", bid.Amount.String())
	s.broadcastBid(ctx, &msg, &bid)
	if s.notify != nil {
		if _, err := s.notify.NotifyNewBid(ctx, room, &bid); err != nil {
			s.log.Warn("chat: notify new bid", "bid_id", bid.ID, "error", err)
		}
	}
	return &bid, true, nil
}

func (s *Service) bidByKey(ctx context.Context, room *models.Room, key string) (*models.Bid, error) {
	var bid models.Bid
	err := s.db.WithContext(ctx).
		Preload("Organizer").
		Preload("Vendor").
		Where("organizer_id = ? AND vendor_id = ? AND idempotency_key = ?", room.OrganizerID, room.VendorID, key).
		First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("chat: find bid by key: %w", err)
	}
	return &bid, nil
}

// RespondToBid applies the vendor's action to a pending bid and records a
// companion bid message in the same transaction.
func (s *Service) RespondToBid(ctx context.Context, actor *auth.Principal, roomID, bidID uint, action BidAction) (*models.Bid, error) {
	room, err := s.roomFor(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	var bid models.Bid
	err = s.db.WithContext(ctx).Where("id = ? AND room_id = ?", bidID, roomID).First(&bid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Bid not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load bid %d: %w", bidID, err)
	}
	if actor.ID != bid.VendorID {
		return nil, apperr.Forbidden("Only the vendor can respond to a bid.")
	}

	next, err := Transition(bid.Status, action)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]any{"status": next, "updated_at": now}
	text := "Bid " + string(next)
	if next == models.BidCountered {
		updates["counter_amount"] = action.CounterAmount
		text = "Bid countered to " + action.CounterAmount.Display()
	}

	var msg models.Message
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Bid{}).
			Where("id = ? AND status = ?", bid.ID, models.BidPending).
			UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errBidMoved
		}
		msg = bidMessage(&bid, actor.ID, text, now)
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return bumpRoom(tx, roomID, now)
	})
	if errors.Is(err, errBidMoved) {
		var current models.Bid
		if rerr := s.db.WithContext(ctx).First(&current, bid.ID).Error; rerr != nil {
			return nil, fmt.Errorf("chat: reload bid %d: %w", bid.ID, rerr)
		}
		if _, terr := Transition(current.Status, action); terr != nil {
			return nil, terr
		}
		return nil, apperr.Validation("Bid was modified concurrently.", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("chat: respond to bid %d: %w", bid.ID, err)
	}

	bid.Status = next
	bid.UpdatedAt = now
	if next == models.BidCountered {
		amt := action.CounterAmount
		bid.CounterAmount = &amt
	}
	bid.Organizer, bid.Vendor = room.Organizer, room.Vendor
	msg.Sender = participant(room, actor.ID)

	s.log.Info("chat: bid responded", "room_id", roomID, "bid_id", bid.ID, "status", next)
	s.broadcastBid(ctx, &msg, &bid)
	if s.notify != nil {
		if _, err := s.notify.NotifyBidResponse(ctx, room, &bid); err != nil {
			s.log.Warn("chat: notify bid response", "bid_id", bid.ID, "error", err)
		}
	}
	return &bid, nil
}

var errBidMoved = errors.New("chat: bid is no longer pending")

func bidMessage(bid *models.Bid, senderID uint, text string, at time.Time) models.Message {
	id := bid.ID
	return models.Message{
		RoomID:      bid.RoomID,
		SenderID:    senderID,
		Text:        text,
		MessageType: models.MessageBid,
		BidID:       &id,
		CreatedAt:   at,
		DeliveredAt: &at,
	}
}

func (s *Service) broadcastBid(ctx context.Context, msg *models.Message, bid *models.Bid) bool {
	return s.broadcastRoom(ctx, bid.RoomID, broadcast.Envelope{
		Type:    broadcast.EventBid,
		Payload: map[string]any{"message": msg, "bid": bid},
	})
}
