package models

import (
	"time"

	"github.com/google/uuid"
)

// BusinessPermission delegates access on a business to a user who does not own it.
type BusinessPermission struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	BusinessID      uuid.UUID  `gorm:"column:business_id;type:uuid;not null;uniqueIndex:idx_business_permissions_business_user"`
	UserID          uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_business_permissions_business_user;index"`
	GrantedByUserID *uuid.UUID `gorm:"column:granted_by_user_id;type:uuid"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}
