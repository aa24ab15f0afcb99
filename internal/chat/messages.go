package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gigroom/gigroom/internal/models"
	"gorm.io/gorm"
)

// PostMessageInput is the client-supplied part of a new message.
type PostMessageInput struct {
	Text          string
	MessageType   models.MessageType
	TipAmount     *models.Amount
	BidID         *uint
	AttachmentIDs []uint
}

// PostResult is the outcome of a committed message write. Realtime is false
// when the broadcast medium rejected the fan-out.
type PostResult struct {
	Message  *models.Message
	Realtime bool
}

// PostMessage validates and stores a message from actor in the room, then
// fans it out and notifies the counterpart.
func (s *Service) PostMessage(ctx context.Context, actor *auth.Principal, roomID uint, in PostMessageInput) (*PostResult, error) {
	room, err := s.roomFor(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}

	in.Text = strings.TrimSpace(in.Text)
	if in.MessageType == "" {
		in.MessageType = models.MessageText
	}
	if !in.MessageType.Valid() {
		return nil, apperr.Field("message_type", fmt.Sprintf("%q is not a valid choice.", in.MessageType))
	}
	if in.TipAmount != nil && *in.TipAmount <= 0 {
		return nil, apperr.Field("tip_amount", "Tip amount must be greater than zero.")
	}
	if in.BidID != nil {
		var n int64
		err := s.db.WithContext(ctx).Model(&models.Bid{}).
			Where("id = ? AND room_id = ?", *in.BidID, roomID).
			Count(&n).Error
		if err != nil {
			return nil, fmt.Errorf("chat: check bid: %w", err)
		}
		if n == 0 {
			return nil, apperr.Field("bid", "Bid does not belong to this room.")
		}
	}
	if in.MessageType == models.MessageBid && in.BidID == nil {
		return nil, apperr.Field("bid", "Bid messages must reference a bid.")
	}

	atts, err := s.roomAttachments(ctx, roomID, in.AttachmentIDs)
	if err != nil {
		return nil, err
	}
	if in.Text == "" && len(atts) == 0 && in.BidID == nil {
		return nil, apperr.Validation("Message must include text, an attachment, or a bid.", nil)
	}

	now := s.now()
	msg := models.Message{
		RoomID:      roomID,
		SenderID:    actor.ID,
		Text:        in.Text,
		TipAmount:   in.TipAmount,
		MessageType: in.MessageType,
		BidID:       in.BidID,
		CreatedAt:   now,
		DeliveredAt: &now,
		Attachments: atts,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Attachments.*").Create(&msg).Error; err != nil {
			return err
		}
		return bumpRoom(tx, roomID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("chat: create message: %w", err)
	}
	msg.Sender = participant(room, actor.ID)

	ok := s.broadcastRoom(ctx, roomID, broadcast.Envelope{
		Type:    broadcast.EventMessage,
		Payload: map[string]any{"message": &msg},
	})
	if s.notify != nil {
		if _, err := s.notify.NotifyNewMessage(ctx, room, actor.ID, msg.Text); err != nil {
			s.log.Warn("chat: notify new message", "room_id", roomID, "message_id", msg.ID, "error", err)
		}
	}
	return &PostResult{Message: &msg, Realtime: ok}, nil
}

// roomAttachments loads the attachments named by ids, deduplicated, and
// rejects any that were not uploaded to roomID.
func (s *Service) roomAttachments(ctx context.Context, roomID uint, ids []uint) ([]models.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[uint]bool, len(ids))
	uniq := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}

	var atts []models.Attachment
	err := s.db.WithContext(ctx).
		Where("id IN ? AND room_id = ?", uniq, roomID).
		Order("id").
		Find(&atts).Error
	if err != nil {
		return nil, fmt.Errorf("chat: load attachments: %w", err)
	}
	if len(atts) != len(uniq) {
		return nil, apperr.Field("attachment_ids", "All attachments must belong to this room.")
	}
	return atts, nil
}

// ListMessages returns the room's messages in chronological order.
func (s *Service) ListMessages(ctx context.Context, actor *auth.Principal, roomID uint) ([]models.Message, error) {
	if _, err := s.roomFor(ctx, actor, roomID); err != nil {
		return nil, err
	}
	return s.messages(ctx, roomID)
}

func (s *Service) messages(ctx context.Context, roomID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Preload("Sender").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("attachments.id") }).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	return msgs, nil
}

// MarkRead stamps read_at on one message. Repeated calls keep the first
// timestamp and broadcast only once.
func (s *Service) MarkRead(ctx context.Context, actor *auth.Principal, roomID, messageID uint) (*models.Message, error) {
	if _, err := s.roomFor(ctx, actor, roomID); err != nil {
		return nil, err
	}
	var msg models.Message
	err := s.db.WithContext(ctx).Where("id = ? AND room_id = ?", messageID, roomID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Message not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load message %d: %w", messageID, err)
	}
	if msg.ReadAt != nil {
		return &msg, nil
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND read_at IS NULL", messageID).
		UpdateColumn("read_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("chat: mark message %d read: %w", messageID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race to another reader; return the stored stamp.
		if err := s.db.WithContext(ctx).First(&msg, messageID).Error; err != nil {
			return nil, fmt.Errorf("chat: reload message %d: %w", messageID, err)
		}
		return &msg, nil
	}
	msg.ReadAt = &now
	s.broadcastRoom(ctx, roomID, broadcast.Envelope{
		Type: broadcast.EventReadReceipt,
		Payload: map[string]any{
			"message_id": msg.ID,
			"read_at":    now,
			"reader":     actor.ID,
		},
	})
	return &msg, nil
}

// MarkReadUpTo stamps every unread message in the room with id at most
// maxID that actor did not send. It returns the number of messages marked.
func (s *Service) MarkReadUpTo(ctx context.Context, actor *auth.Principal, roomID, maxID uint) (int64, error) {
	if _, err := s.roomFor(ctx, actor, roomID); err != nil {
		return 0, err
	}
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("room_id = ? AND id <= ? AND sender_id <> ? AND read_at IS NULL", roomID, maxID, actor.ID).
		UpdateColumn("read_at", now)
	if res.Error != nil {
		return 0, fmt.Errorf("chat: mark room %d read: %w", roomID, res.Error)
	}
	if res.RowsAffected > 0 {
		s.broadcastRoom(ctx, roomID, broadcast.Envelope{
			Type: broadcast.EventReadReceipt,
			Payload: map[string]any{
				"up_to":   maxID,
				"count":   res.RowsAffected,
				"read_at": now,
				"reader":  actor.ID,
			},
		})
	}
	return res.RowsAffected, nil
}

// Typing fans out a typing indicator. Nothing is stored.
func (s *Service) Typing(ctx context.Context, actor *auth.Principal, roomID uint) (bool, error) {
	if _, err := s.roomFor(ctx, actor, roomID); err != nil {
		return false, err
	}
	return s.broadcastRoom(ctx, roomID, broadcast.Envelope{
		Type:    broadcast.EventTyping,
		Payload: map[string]any{"user": actor.Username, "user_id": actor.ID},
	}), nil
}
