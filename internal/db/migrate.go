package db

import (
	"fmt"

	"github.com/gigroom/gigroom/internal/config"
	"github.com/gigroom/gigroom/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Room{},
		&models.Bid{},
		&models.Attachment{},
		&models.Message{},
		&models.Notification{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedUsers upserts User rows from configuration, keyed by username.
func SeedUsers(db *gorm.DB, users []config.UserConfig) error {
	for _, uc := range users {
		user := models.User{
			Username: uc.Username,
			Role:     uc.Role,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).Create(&user)
		if result.Error != nil {
			return fmt.Errorf("db: seed user %q: %w", uc.Username, result.Error)
		}
	}
	return nil
}

// CreateUser inserts a single user. A taken username is reported as such
// rather than as a raw driver error.
func CreateUser(db *gorm.DB, username, role string) (*models.User, error) {
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("db: create user %q: invalid role %q", username, role)
	}
	user := models.User{Username: username, Role: role}
	if err := db.Create(&user).Error; err != nil {
		if IsDuplicate(err) {
			return nil, fmt.Errorf("db: create user %q: username already taken", username)
		}
		return nil, fmt.Errorf("db: create user %q: %w", username, err)
	}
	return &user, nil
}
