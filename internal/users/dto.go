package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/pkg/db/models"
)

// UserDTO is the transport shape returned after login.
type UserDTO struct {
	ID             uuid.UUID  `json:"id"`
	TelegramUserID int64      `json:"telegram_user_id"`
	FirstName      string     `json:"first_name"`
	LastName       *string    `json:"last_name,omitempty"`
	Username       *string    `json:"username,omitempty"`
	LanguageCode   *string    `json:"language_code,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TelegramProfile holds the verified Telegram identity used to upsert a user.
type TelegramProfile struct {
	TelegramUserID int64
	FirstName      string
	LastName       string
	Username       string
	LanguageCode   string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:             u.ID,
		TelegramUserID: u.TelegramUserID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Username:       u.Username,
		LanguageCode:   u.LanguageCode,
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
	}
}

func (p TelegramProfile) toModel(loginAt time.Time) *models.User {
	return &models.User{
		ID:             uuid.New(),
		TelegramUserID: p.TelegramUserID,
		FirstName:      p.FirstName,
		LastName:       optional(p.LastName),
		Username:       optional(p.Username),
		LanguageCode:   optional(p.LanguageCode),
		LastLoginAt:    &loginAt,
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
