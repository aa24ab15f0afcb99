package models

import "time"

// Roles a user can hold in the marketplace.
const (
	RoleOrganizer = "organizer"
	RoleVendor    = "vendor"
	RoleAdmin     = "admin"
)

// User is the local view of an identity. Credentials live elsewhere; the
// row exists so rooms, bids and notifications have something to point at.
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"size:150;not null;uniqueIndex" json:"username"`
	Role      string    `gorm:"size:16;not null;default:organizer;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role string) bool {
	return u != nil && u.Role == role
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOrganizer, RoleVendor, RoleAdmin:
		return true
	}
	return false
}
