package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/appointly-backend/internal/subscriptions"
	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

const defaultReconcileLimit = 250

type reconcileStore interface {
	ListForReconciliation(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	ApplyProcessorState(ctx context.Context, ownerID uuid.UUID, state subscriptions.ProcessorState) (*models.Subscription, error)
}

type processorClient interface {
	FetchLatest(ctx context.Context, customerID string) (*subscriptions.ProcessorState, error)
}

// SubscriptionReconcileJobParams configures the subscription sync job.
type SubscriptionReconcileJobParams struct {
	Logger    *logger.Logger
	Records   reconcileStore
	Processor processorClient
	Limit     int
	Now       func() time.Time
}

// NewSubscriptionReconcileJob builds a job that pulls the processor state for
// records whose stored status may be stale.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Records == nil {
		return nil, fmt.Errorf("subscription records required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("processor client required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &subscriptionReconcileJob{
		logg:      params.Logger,
		records:   params.Records,
		processor: params.Processor,
		now:       now,
		limit:     limit,
	}, nil
}

type subscriptionReconcileJob struct {
	logg      *logger.Logger
	records   reconcileStore
	processor processorClient
	now       func() time.Time
	limit     int
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	candidates, err := j.records.ListForReconciliation(ctx, j.now().UTC(), j.limit)
	if err != nil {
		return fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}
	var errs error
	synced := 0
	for i := range candidates {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		changed, err := j.reconcile(ctx, &candidates[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if changed {
			synced++
		}
	}
	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"synced":     synced,
	})
	j.logg.Info(reportCtx, "subscription reconcile loop complete")
	return errs
}

func (j *subscriptionReconcileJob) reconcile(ctx context.Context, sub *models.Subscription) (bool, error) {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"owner_id":      sub.OwnerID.String(),
		"stored_status": string(sub.Status),
	})
	if sub.StripeCustomerID == nil || strings.TrimSpace(*sub.StripeCustomerID) == "" {
		return false, nil
	}
	state, err := j.processor.FetchLatest(logCtx, *sub.StripeCustomerID)
	if err != nil {
		return false, fmt.Errorf("fetch processor state for %s: %w", sub.OwnerID, err)
	}
	if state == nil || state.Status == "" {
		j.logg.Info(logCtx, "processor has no subscription; skipping")
		return false, nil
	}
	updated, err := j.records.ApplyProcessorState(logCtx, sub.OwnerID, *state)
	if err != nil {
		return false, fmt.Errorf("apply processor state for %s: %w", sub.OwnerID, err)
	}
	j.logg.Info(j.logg.WithField(logCtx, "status", string(updated.Status)), "subscription reconciled")
	return true, nil
}
