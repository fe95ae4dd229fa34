package businesses

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

// CreateBusinessRequest is the payload for POST /businesses.
type CreateBusinessRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=120"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

// BusinessDTO is the transport shape of a business.
type BusinessDTO struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

// InviteDTO is the transport shape of an invite.
type InviteDTO struct {
	Code       string             `json:"code"`
	BusinessID uuid.UUID          `json:"business_id"`
	Status     enums.InviteStatus `json:"status"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

// CreateResult reports the created business and, when the create granted the
// owner's trial, the refreshed snapshot. Subscription is nil if rotation failed.
type CreateResult struct {
	Business     *BusinessDTO     `json:"business"`
	TrialStarted bool             `json:"trial_started"`
	Subscription *access.Snapshot `json:"subscription,omitempty"`
}

// AcceptResult reports the business the caller was granted.
type AcceptResult struct {
	Business *BusinessDTO `json:"business"`
}

func businessFromModel(b *models.Business) *BusinessDTO {
	if b == nil {
		return nil
	}
	return &BusinessDTO{
		ID:        b.ID,
		OwnerID:   b.OwnerID,
		Name:      b.Name,
		Timezone:  b.Timezone,
		CreatedAt: b.CreatedAt,
	}
}

func inviteFromModel(i *models.BusinessInvite) *InviteDTO {
	return &InviteDTO{
		Code:       i.Code,
		BusinessID: i.BusinessID,
		Status:     i.Status,
		ExpiresAt:  i.ExpiresAt,
	}
}
