package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity created from a Telegram mini-app login. Every user can
// own businesses and therefore holds at most one subscription record.
type User struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TelegramUserID int64      `gorm:"column:telegram_user_id;not null;uniqueIndex"`
	FirstName      string     `gorm:"column:first_name;not null"`
	LastName       *string    `gorm:"column:last_name"`
	Username       *string    `gorm:"column:username"`
	LanguageCode   *string    `gorm:"column:language_code"`
	LastLoginAt    *time.Time `gorm:"column:last_login_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// DisplayName joins first and last name the way the mini-app shows them.
func (u User) DisplayName() string {
	if u.LastName == nil || *u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + *u.LastName
}
