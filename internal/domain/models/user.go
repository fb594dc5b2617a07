// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id); this is the principal ID carried in tokens
//   - TelegramID / telegram_id: The numeric account ID asserted by the Telegram login widget

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a principal known to the bot. Records are created by the bot when a
// member first interacts with it; the dashboard only reads them and refreshes
// display fields on login.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TelegramID int64              `bson:"telegram_id" json:"telegramId"`

	// Display fields, refreshed from the login assertion
	FirstName string `bson:"first_name" json:"firstName"`
	LastName  string `bson:"last_name,omitempty" json:"lastName,omitempty"`
	Username  string `bson:"username,omitempty" json:"username,omitempty"`
	PhotoURL  string `bson:"photo_url,omitempty" json:"photoUrl,omitempty"`

	// Role and status
	Role        string   `bson:"role" json:"role"`                                   // owner, admin, moderator, member
	Permissions []string `bson:"permissions,omitempty" json:"permissions,omitempty"` // fine-grained dashboard grants
	Status      string   `bson:"status,omitempty" json:"status,omitempty"`           // active, disabled

	LastLoginAt *time.Time `bson:"last_login_at,omitempty" json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`
}

// User roles
const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// User statuses
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// AllRoles returns all valid user roles, most privileged first.
func AllRoles() []string {
	return []string{
		RoleOwner,
		RoleAdmin,
		RoleModerator,
		RoleMember,
	}
}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// ElevatedRoles returns the roles allowed into the dashboard by default.
func ElevatedRoles() []string {
	return []string{RoleOwner, RoleAdmin, RoleModerator}
}

// DisplayName returns the name shown for the user in the dashboard.
func (u *User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsDisabled reports whether the account has been switched off.
func (u *User) IsDisabled() bool {
	return u.Status == StatusDisabled
}
