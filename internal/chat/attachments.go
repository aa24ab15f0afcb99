package chat

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/models"
	"github.com/gigroom/gigroom/internal/storage"
)

// UploadAttachment stores r as a file scoped to the room. The returned
// attachment can be referenced by a later message in the same room.
func (s *Service) UploadAttachment(ctx context.Context, actor *auth.Principal, roomID uint, name string, r io.Reader) (*models.Attachment, error) {
	if _, err := s.roomFor(ctx, actor, roomID); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, fmt.Errorf("chat: attachment storage is not configured")
	}
	if r == nil {
		return nil, apperr.Field("file", "No file was submitted.")
	}

	obj, err := s.store.Save(ctx, fmt.Sprintf("chat_attachments/%d", roomID), name, r)
	if errors.Is(err, storage.ErrTooLarge) {
		return nil, apperr.Field("file", "File is too large.")
	}
	if err != nil {
		return nil, fmt.Errorf("chat: store attachment: %w", err)
	}

	att := models.Attachment{
		RoomID:       roomID,
		UploadedBy:   actor.ID,
		StorageKey:   obj.Key,
		URL:          obj.URL,
		OriginalName: obj.Name,
		Size:         obj.Size,
		ContentType:  obj.ContentType,
		UploadedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&att).Error; err != nil {
		if derr := s.store.Delete(ctx, obj.Key); derr != nil {
			s.log.Warn("chat: remove orphaned upload", "key", obj.Key, "error", derr)
		}
		return nil, fmt.Errorf("chat: create attachment: %w", err)
	}
	return &att, nil
}
