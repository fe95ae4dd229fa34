package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

// Repository persists the per-owner subscription record.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error)
	Ensure(ctx context.Context, ownerID uuid.UUID) error
	StartTrialIfUnset(ctx context.Context, ownerID uuid.UUID, startsAt, endsAt time.Time) (bool, error)
	ApplyProcessorState(ctx context.Context, ownerID uuid.UUID, state ProcessorState) (*models.Subscription, error)
	ListForReconciliation(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByOwner returns nil without error when the owner has no record yet.
func (r *repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Ensure creates an empty record for the owner unless one already exists.
func (r *repository) Ensure(ctx context.Context, ownerID uuid.UUID) error {
	record := &models.Subscription{
		OwnerID: ownerID,
		Status:  enums.SubscriptionStatusNone,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoNothing: true,
		}).
		Create(record).Error
}

// StartTrialIfUnset writes the trial window in one conditional update. It
// reports false when the window was already set.
func (r *repository) StartTrialIfUnset(ctx context.Context, ownerID uuid.UUID, startsAt, endsAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("owner_id = ? AND trial_starts_at IS NULL", ownerID).
		Updates(map[string]any{
			"trial_starts_at": startsAt,
			"trial_ends_at":   endsAt,
			"updated_at":      startsAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ApplyProcessorState overwrites the processor-owned columns and returns the
// reloaded record. Trial columns are never touched here.
func (r *repository) ApplyProcessorState(ctx context.Context, ownerID uuid.UUID, state ProcessorState) (*models.Subscription, error) {
	updates := map[string]any{
		"status":             state.Status,
		"current_period_end": state.CurrentPeriodEnd,
		"canceled_at":        state.CanceledAt,
	}
	if state.SubscriptionID != "" {
		updates["stripe_subscription_id"] = state.SubscriptionID
	}
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("owner_id = ?", ownerID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByOwner(ctx, ownerID)
}

// ListForReconciliation returns processor-linked records whose stored state
// may have drifted: unsettled statuses, or a paid period that already ended.
func (r *repository) ListForReconciliation(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	unsettled := []enums.SubscriptionStatus{
		enums.SubscriptionStatusIncomplete,
		enums.SubscriptionStatusPastDue,
		enums.SubscriptionStatusUnpaid,
	}
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("stripe_customer_id IS NOT NULL AND stripe_customer_id <> ''").
		Where(
			r.db.Where("status IN ?", unsettled).
				Or("status = ? AND current_period_end < ?", enums.SubscriptionStatusActive, now),
		).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
