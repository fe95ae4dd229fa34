package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

// BusinessInvite is a single-use code that turns into a BusinessPermission when accepted.
type BusinessInvite struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	BusinessID       uuid.UUID          `gorm:"column:business_id;type:uuid;not null;index"`
	Code             string             `gorm:"column:code;not null;uniqueIndex"`
	Status           enums.InviteStatus `gorm:"column:status;type:invite_status;not null;default:'pending'"`
	CreatedByUserID  uuid.UUID          `gorm:"column:created_by_user_id;type:uuid;not null"`
	AcceptedByUserID *uuid.UUID         `gorm:"column:accepted_by_user_id;type:uuid"`
	AcceptedAt       *time.Time         `gorm:"column:accepted_at"`
	ExpiresAt        time.Time          `gorm:"column:expires_at;not null"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
