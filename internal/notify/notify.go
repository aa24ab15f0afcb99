// Package notify records per-user notifications and pushes them to the
// recipient's realtime stream. Realtime and relay delivery are best-effort;
// only the row insert can fail a call.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gigroom/gigroom/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ListLimit is the number of notifications List returns.
const ListLimit = 50

// Link types understood by DeepLink.
const (
	LinkChat    = "chat"
	LinkBooking = "booking"
)

// Mirror receives every stored notification for out-of-band delivery.
type Mirror interface {
	Mirror(n *models.Notification, recipient string)
}

// Opts holds parameters for creating a Service.
type Opts struct {
	DB          *gorm.DB              // required
	Broadcaster broadcast.Broadcaster // nil means broadcast.Nop
	Relay       Mirror                // optional
	Logger      *slog.Logger          // nil means slog.Default()
	Now         func() time.Time      // nil means time.Now
}

// Service creates and manages notifications.
type Service struct {
	db    *gorm.DB
	bc    broadcast.Broadcaster
	relay Mirror
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Service.
func New(opts Opts) (*Service, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("notify: db is required")
	}
	s := &Service{
		db:    opts.DB,
		bc:    opts.Broadcaster,
		relay: opts.Relay,
		log:   opts.Logger,
		now:   opts.Now,
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

// Params describes a notification to create.
type Params struct {
	RecipientID uint
	SenderID    *uint
	Type        models.NotificationType
	Title       string
	Message     string
	LinkType    string
	LinkID      *uint
	Data        map[string]any
}

// Create stores a notification, pushes it to the recipient's stream and
// hands it to the relay.
func (s *Service) Create(ctx context.Context, p Params) (*models.Notification, error) {
	fields := map[string]string{}
	if p.RecipientID == 0 {
		fields["recipient"] = "This field is required."
	}
	if !p.Type.Valid() {
		fields["notification_type"] = fmt.Sprintf("%q is not a valid choice.", p.Type)
	}
	if p.Title == "" {
		fields["title"] = "This field may not be blank."
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid notification", fields)
	}

	data := datatypes.JSONMap{}
	for k, v := range p.Data {
		data[k] = v
	}
	n := models.Notification{
		RecipientID:      p.RecipientID,
		SenderID:         p.SenderID,
		NotificationType: p.Type,
		Title:            p.Title,
		Message:          p.Message,
		LinkType:         p.LinkType,
		LinkID:           p.LinkID,
		Data:             data,
		CreatedAt:        s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("notify: create: %w", err)
	}
	if p.SenderID != nil {
		var sender models.User
		if err := s.db.WithContext(ctx).First(&sender, *p.SenderID).Error; err != nil {
			s.log.Warn("notify: load sender", "notification_id", n.ID, "sender", *p.SenderID, "error", err)
		} else {
			n.Sender = &sender
		}
	}
	n.DeepLink = DeepLink(n.LinkType, n.LinkID)

	env := broadcast.Envelope{Type: broadcast.EventNotification, Payload: map[string]any{"notification": &n}}
	if !s.bc.Send(ctx, broadcast.UserGroup(n.RecipientID), env) {
		s.log.Warn("notify: realtime push failed", "notification_id", n.ID, "recipient", n.RecipientID)
	}

	if s.relay != nil {
		var recipient models.User
		name := fmt.Sprintf("user %d", n.RecipientID)
		if err := s.db.WithContext(ctx).Select("username").First(&recipient, n.RecipientID).Error; err != nil {
			s.log.Warn("notify: load relay recipient", "notification_id", n.ID, "recipient", n.RecipientID, "error", err)
		} else {
			name = recipient.Username
		}
		s.relay.Mirror(&n, name)
	}
	return &n, nil
}

// DeepLink returns the client route for a link target, or "" when the
// target is unknown or unset.
func DeepLink(linkType string, linkID *uint) string {
	if linkID == nil || *linkID == 0 {
		return ""
	}
	switch linkType {
	case LinkChat:
		return fmt.Sprintf("/dm/%d", *linkID)
	case LinkBooking:
		return fmt.Sprintf("/bookings/%d", *linkID)
	}
	return ""
}

// List returns the recipient's newest notifications.
func (s *Service) List(ctx context.Context, recipientID uint) ([]models.Notification, error) {
	var out []models.Notification
	err := s.db.WithContext(ctx).
		Preload("Sender").
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC, id DESC").
		Limit(ListLimit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("notify: list: %w", err)
	}
	for i := range out {
		out[i].DeepLink = DeepLink(out[i].LinkType, out[i].LinkID)
	}
	return out, nil
}

// UnreadCount returns how many of the recipient's notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("notify: unread count: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the recipient's notifications read. Marking an
// already-read notification leaves read_at unchanged.
func (s *Service) MarkRead(ctx context.Context, recipientID, id uint) (*models.Notification, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).Preload("Sender").
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Notification not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("notify: mark read %d: %w", id, err)
	}

	if !n.IsRead {
		now := s.now()
		res := s.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND is_read = ?", n.ID, false).
			Updates(map[string]any{"is_read": true, "read_at": now})
		if res.Error != nil {
			return nil, fmt.Errorf("notify: mark read %d: %w", id, res.Error)
		}
		n.IsRead = true
		if res.RowsAffected > 0 {
			n.ReadAt = &now
		}
	}
	n.DeepLink = DeepLink(n.LinkType, n.LinkID)
	return &n, nil
}

// MarkAllRead marks every unread notification of the recipient read and
// returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]any{"is_read": true, "read_at": s.now()})
	if res.Error != nil {
		return 0, fmt.Errorf("notify: mark all read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
