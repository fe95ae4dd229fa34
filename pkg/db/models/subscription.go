package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

// Subscription is the authoritative per-owner subscription record. Trial
// fields are written once by the trial service; processor fields are written
// by reconciliation.
type Subscription struct {
	OwnerID              uuid.UUID                `gorm:"column:owner_id;type:uuid;primaryKey"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'none'"`
	TrialStartsAt        *time.Time               `gorm:"column:trial_starts_at"`
	TrialEndsAt          *time.Time               `gorm:"column:trial_ends_at"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// TrialStarted reports whether the one-time trial window has been granted.
func (s *Subscription) TrialStarted() bool {
	return s != nil && s.TrialStartsAt != nil
}
