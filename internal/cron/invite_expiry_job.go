package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

const defaultInviteBatch = 500

type inviteStore interface {
	RevokeExpiredInvites(ctx context.Context, at time.Time, limit int) (int64, error)
}

// InviteExpiryJobParams configures the invite sweep.
type InviteExpiryJobParams struct {
	Logger  *logger.Logger
	Invites inviteStore
	Batch   int
	Now     func() time.Time
}

// NewInviteExpiryJob revokes pending invites past their expiry in batches.
func NewInviteExpiryJob(params InviteExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Invites == nil {
		return nil, fmt.Errorf("invite store required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultInviteBatch
	}
	return &inviteExpiryJob{logg: params.Logger, invites: params.Invites, batch: batch, now: now}, nil
}

type inviteExpiryJob struct {
	logg    *logger.Logger
	invites inviteStore
	batch   int
	now     func() time.Time
}

func (j *inviteExpiryJob) Name() string { return "invite-expiry" }

func (j *inviteExpiryJob) Run(ctx context.Context) error {
	at := j.now().UTC()
	var total int64
	for {
		revoked, err := j.invites.RevokeExpiredInvites(ctx, at, j.batch)
		if err != nil {
			return fmt.Errorf("revoke expired invites: %w", err)
		}
		total += revoked
		if revoked < int64(j.batch) {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "revoked", total), "expired invites revoked")
	return nil
}
