// Package chat implements the negotiation channel between an organizer and
// a vendor: rooms, messages, attachments and bids. Every write commits
// before any realtime broadcast or notification is attempted, and those
// side effects never fail the write.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gigroom/gigroom/internal/models"
	"github.com/gigroom/gigroom/internal/storage"
	"gorm.io/gorm"
)

// Notifier receives the chat events that produce notifications.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, room *models.Room, senderID uint, text string) (*models.Notification, error)
	NotifyNewBid(ctx context.Context, room *models.Room, bid *models.Bid) (*models.Notification, error)
	NotifyBidResponse(ctx context.Context, room *models.Room, bid *models.Bid) (*models.Notification, error)
}

// Opts holds parameters for creating a Service.
type Opts struct {
	DB          *gorm.DB              // required
	Broadcaster broadcast.Broadcaster // nil means broadcast.Nop
	Notifier    Notifier              // optional
	Store       storage.Store         // required for attachment uploads
	Logger      *slog.Logger          // nil means slog.Default()
	Now         func() time.Time      // nil means time.Now
}

// Service implements the room, message and bid operations.
type Service struct {
	db     *gorm.DB
	bc     broadcast.Broadcaster
	notify Notifier
	store  storage.Store
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Service.
func New(opts Opts) (*Service, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("chat: db is required")
	}
	s := &Service{
		db:     opts.DB,
		bc:     opts.Broadcaster,
		notify: opts.Notifier,
		store:  opts.Store,
		log:    opts.Logger,
		now:    opts.Now,
	}
	if s.bc == nil {
		s.bc = broadcast.Nop{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// roomFor loads a room with both participants and checks that actor is one
// of them. Unknown rooms and non-participants are reported separately.
func (s *Service) roomFor(ctx context.Context, actor *auth.Principal, roomID uint) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).
		Preload("Organizer").
		Preload("Vendor").
		First(&room, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Room not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load room %d: %w", roomID, err)
	}
	if actor == nil || !room.HasParticipant(actor.ID) {
		return nil, apperr.Forbidden("You are not a participant in this room.")
	}
	return &room, nil
}

// participant returns the loaded user row for id in room.
func participant(room *models.Room, id uint) *models.User {
	switch id {
	case room.OrganizerID:
		return room.Organizer
	case room.VendorID:
		return room.Vendor
	}
	return nil
}

// broadcastRoom sends env to the room group and logs a degraded medium.
func (s *Service) broadcastRoom(ctx context.Context, roomID uint, env broadcast.Envelope) bool {
	ok := s.bc.Send(ctx, broadcast.RoomGroup(roomID), env)
	if !ok {
		s.log.Warn("chat: realtime broadcast failed", "room_id", roomID, "type", env.Type)
	}
	return ok
}

// bumpRoom moves the room to the top of both participants' lists.
func bumpRoom(tx *gorm.DB, roomID uint, at time.Time) error {
	return tx.Model(&models.Room{}).Where("id = ?", roomID).UpdateColumn("updated_at", at).Error
}

// Room returns the room after checking that actor takes part in it.
func (s *Service) Room(ctx context.Context, actor *auth.Principal, roomID uint) (*models.Room, error) {
	return s.roomFor(ctx, actor, roomID)
}
