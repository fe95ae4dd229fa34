// Package access derives subscription access for an owner and decides
// whether a request may proceed.
package access

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

const day = 24 * time.Hour

// Snapshot is the derived access state for one owner at CheckedAt. It is a
// value: refreshed state is always a new Snapshot.
type Snapshot struct {
	OwnerID      uuid.UUID          `json:"owner_id"`
	Status       enums.AccessStatus `json:"status"`
	HasAccess    bool               `json:"has_access"`
	DaysLeft     int                `json:"days_left"`
	NeedsPayment bool               `json:"needs_payment"`
	CheckedAt    time.Time          `json:"checked_at"`
}

// FreshAt reports whether the snapshot can still be trusted at now.
func (s Snapshot) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CheckedAt) < ttl
}

// Calculate maps a subscription record onto a Snapshot. A nil record is an
// owner without any subscription history.
func Calculate(record *models.Subscription, now time.Time) Snapshot {
	now = now.UTC()
	snap := Snapshot{CheckedAt: now}
	if record == nil {
		snap.Status = enums.AccessStatusIncomplete
		return snap
	}
	snap.OwnerID = record.OwnerID

	switch {
	case record.CanceledAt != nil && !record.CanceledAt.After(now):
		snap.Status = enums.AccessStatusCanceled
	case record.Status.RequiresPayment():
		snap.Status = enums.AccessStatusPastDue
		snap.NeedsPayment = true
	case record.CurrentPeriodEnd != nil && record.CurrentPeriodEnd.After(now):
		snap.Status = enums.AccessStatusActive
	case record.TrialEndsAt != nil && now.Before(*record.TrialEndsAt):
		snap.Status = enums.AccessStatusTrialing
		snap.DaysLeft = daysUntil(now, *record.TrialEndsAt)
	case record.TrialEndsAt != nil:
		snap.Status = enums.AccessStatusTrialExpired
	default:
		snap.Status = enums.AccessStatusIncomplete
	}
	snap.HasAccess = snap.Status.GrantsAccess()
	return snap
}

func daysUntil(now, end time.Time) int {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(float64(remaining) / float64(day)))
}
