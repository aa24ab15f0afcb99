package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/db"
	"github.com/gigroom/gigroom/internal/models"
	"gorm.io/gorm"
)

// GetOrCreateRoom returns the room for the two users, creating it on first
// contact. The boolean reports whether a row was inserted.
//
// When exactly one of the users is a vendor that user becomes the vendor
// side; otherwise organizerID is taken as given.
func (s *Service) GetOrCreateRoom(ctx context.Context, actor *auth.Principal, organizerID, vendorID uint) (*models.Room, bool, error) {
	if organizerID == 0 || vendorID == 0 {
		fields := map[string]string{}
		if organizerID == 0 {
			fields["organizer"] = "This field is required."
		}
		if vendorID == 0 {
			fields["vendor"] = "This field is required."
		}
		return nil, false, apperr.Validation("Organizer and vendor are required.", fields)
	}
	if organizerID == vendorID {
		return nil, false, apperr.Validation("Organizer and vendor must be different users.", nil)
	}
	if actor == nil || (actor.ID != organizerID && actor.ID != vendorID) {
		return nil, false, apperr.Forbidden("You must be a participant to create a room.")
	}
	if actor.HasRole(models.RoleOrganizer) && actor.ID != organizerID {
		return nil, false, apperr.Forbidden("Organizers may only initiate their own rooms.")
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", []uint{organizerID, vendorID}).Find(&users).Error; err != nil {
		return nil, false, fmt.Errorf("chat: load users: %w", err)
	}
	if len(users) != 2 {
		return nil, false, apperr.NotFound("User not found.")
	}
	byID := map[uint]*models.User{users[0].ID: &users[0], users[1].ID: &users[1]}
	first, second := byID[organizerID], byID[vendorID]

	key := models.PairKey(organizerID, vendorID)
	if room, err := s.roomByPair(ctx, key); err == nil {
		return room, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	org, vend := first, second
	if first.HasRole(models.RoleVendor) && !second.HasRole(models.RoleVendor) {
		org, vend = second, first
	}

	now := s.now()
	room := models.Room{
		OrganizerID: org.ID,
		VendorID:    vend.ID,
		PairKey:     key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Omit("Organizer", "Vendor").Create(&room).Error; err != nil {
		if db.IsDuplicate(err) {
			existing, rerr := s.roomByPair(ctx, key)
			if rerr != nil {
				return nil, false, rerr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("chat: create room: %w", err)
	}
	room.Organizer, room.Vendor = org, vend
	s.log.Info("chat: room created", "room_id", room.ID, "organizer", org.ID, "vendor", vend.ID)
	return &room, true, nil
}

func (s *Service) roomByPair(ctx context.Context, key string) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).
		Preload("Organizer").
		Preload("Vendor").
		Where("pair_key = ?", key).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("chat: find room %s: %w", key, err)
	}
	return &room, nil
}

// RoomWithUser returns the room between actor and the user named username,
// resolving which side each of them sits on from their roles.
func (s *Service) RoomWithUser(ctx context.Context, actor *auth.Principal, username string) (*models.Room, bool, error) {
	if actor == nil {
		return nil, false, apperr.Forbidden("Authentication required.")
	}
	var target models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperr.NotFound("User not found.")
	}
	if err != nil {
		return nil, false, fmt.Errorf("chat: find user %q: %w", username, err)
	}
	if target.ID == actor.ID {
		return nil, false, apperr.Validation("Cannot create a room with yourself.", nil)
	}
	return s.GetOrCreateRoom(ctx, actor, actor.ID, target.ID)
}

// ListRoomsFor returns every room userID takes part in, most recently
// active first.
func (s *Service) ListRoomsFor(ctx context.Context, userID uint) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ctx).
		Preload("Organizer").
		Preload("Vendor").
		Where("organizer_id = ? OR vendor_id = ?", userID, userID).
		Order("updated_at DESC, id DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("chat: list rooms: %w", err)
	}
	return rooms, nil
}

// GetRoom returns the room with its full message history.
func (s *Service) GetRoom(ctx context.Context, actor *auth.Principal, roomID uint) (*models.Room, error) {
	room, err := s.roomFor(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.Messages = msgs
	return room, nil
}
