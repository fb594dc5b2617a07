// internal/app/features/authapi/types.go
package authapi

import (
	"time"

	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	"github.com/dalemusser/stratagate/internal/domain/models"
)

// UserResponse is the principal profile returned to the dashboard.
type UserResponse struct {
	ID          string     `json:"id"`
	TelegramID  int64      `json:"telegramId"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName,omitempty"`
	Username    string     `json:"username,omitempty"`
	PhotoURL    string     `json:"photoUrl,omitempty"`
	Role        string     `json:"role"`
	Permissions []string   `json:"permissions,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func userResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID.Hex(),
		TelegramID:  u.TelegramID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Username:    u.Username,
		PhotoURL:    u.PhotoURL,
		Role:        u.Role,
		Permissions: u.Permissions,
		LastLoginAt: u.LastLoginAt,
	}
}

// LoginResponse is the body of a successful POST /auth/telegram.
type LoginResponse struct {
	Success      bool         `json:"success"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"` // access token lifetime in seconds
	User         UserResponse `json:"user"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse is the body of a successful POST /auth/refresh.
type RefreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// MeResponse is the body of GET /auth/me.
type MeResponse struct {
	Success bool         `json:"success"`
	User    UserResponse `json:"user"`
}

// LogoutAllResponse is the body of POST /auth/logout-all.
type LogoutAllResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Revoked int64  `json:"revoked"`
}

// SessionResponse describes one of the caller's sessions.
type SessionResponse struct {
	ID            string    `json:"id"`
	SourceAddress string    `json:"sourceAddress,omitempty"`
	ClientAgent   string    `json:"clientAgent,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	LastActivity  time.Time `json:"lastActivity"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Current       bool      `json:"current"`
}

// SessionsResponse is the body of GET /auth/sessions.
type SessionsResponse struct {
	Success  bool              `json:"success"`
	Sessions []SessionResponse `json:"sessions"`
}

func sessionResponses(list []sessions.Session, currentID string) []SessionResponse {
	out := make([]SessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, SessionResponse{
			ID:            s.ID.Hex(),
			SourceAddress: s.SourceAddress,
			ClientAgent:   s.ClientAgent,
			CreatedAt:     s.CreatedAt,
			LastActivity:  s.LastActivity,
			ExpiresAt:     s.ExpiresAt,
			Current:       s.ID.Hex() == currentID,
		})
	}
	return out
}
