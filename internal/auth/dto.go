package auth

import (
	"time"

	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/internal/users"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
)

// TelegramLoginRequest carries the raw init data string from the mini-app.
type TelegramLoginRequest struct {
	InitData string `json:"init_data" validate:"required"`
}

// LoginResult is the service output; the controller turns Issued into a cookie.
type LoginResult struct {
	User         *users.UserDTO
	Subscription *access.Snapshot
	Degraded     bool
	Issued       *session.Issued
}

// LoginResponse is the JSON body returned after a successful login.
type LoginResponse struct {
	AccessToken  string           `json:"access_token"`
	ExpiresAt    time.Time        `json:"expires_at"`
	User         *users.UserDTO   `json:"user"`
	Subscription *access.Snapshot `json:"subscription"`
	Degraded     bool             `json:"degraded"`
}

// Response renders the result for the HTTP layer.
func (r *LoginResult) Response() LoginResponse {
	return LoginResponse{
		AccessToken:  r.Issued.Token,
		ExpiresAt:    r.Issued.Session.ExpiresAt,
		User:         r.User,
		Subscription: r.Subscription,
		Degraded:     r.Degraded,
	}
}
