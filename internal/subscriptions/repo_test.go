package subscriptions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/appointly-backend/pkg/db/dbtest"
	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

func TestRepositoryEnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.OpenSQLite(t))
	owner := uuid.New()

	found, err := repo.FindByOwner(ctx, owner)
	require.NoError(t, err)
	require.Nil(t, found)

	require.NoError(t, repo.Ensure(ctx, owner))
	require.NoError(t, repo.Ensure(ctx, owner))

	found, err = repo.FindByOwner(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.SubscriptionStatusNone, found.Status)
	assert.Nil(t, found.TrialStartsAt)
}

func TestRepositoryStartTrialIfUnsetOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.OpenSQLite(t))
	owner := uuid.New()
	require.NoError(t, repo.Ensure(ctx, owner))

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	won, err := repo.StartTrialIfUnset(ctx, owner, start, start.Add(14*24*time.Hour))
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.StartTrialIfUnset(ctx, owner, start.Add(time.Hour), start.Add(30*24*time.Hour))
	require.NoError(t, err)
	require.False(t, won)

	found, err := repo.FindByOwner(ctx, owner)
	require.NoError(t, err)
	require.True(t, found.TrialStarted())
	assert.True(t, found.TrialStartsAt.Equal(start))
	assert.True(t, found.TrialEndsAt.Equal(start.Add(14*24*time.Hour)))
}

func TestRepositoryStartTrialIfUnsetConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.OpenSQLite(t))
	owner := uuid.New()
	require.NoError(t, repo.Ensure(ctx, owner))

	const callers = 16
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []time.Time
		errs    []error
	)
	for i := 0; i < callers; i++ {
		startsAt := base.Add(time.Duration(i) * time.Minute)
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.StartTrialIfUnset(ctx, owner, startsAt, startsAt.Add(14*24*time.Hour))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if won {
				winners = append(winners, startsAt)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, winners, 1)

	found, err := repo.FindByOwner(ctx, owner)
	require.NoError(t, err)
	require.True(t, found.TrialStarted())
	assert.True(t, found.TrialStartsAt.Equal(winners[0]))
	assert.True(t, found.TrialEndsAt.Equal(winners[0].Add(14*24*time.Hour)))
}

func TestRepositoryStartTrialWithoutRecordAffectsNothing(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	now := time.Now().UTC()
	won, err := repo.StartTrialIfUnset(context.Background(), uuid.New(), now, now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, won)
}

func TestRepositoryApplyProcessorStateKeepsTrial(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.OpenSQLite(t)
	repo := NewRepository(conn)
	owner := uuid.New()
	trialStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trialEnd := trialStart.Add(14 * 24 * time.Hour)
	customer := "cus_123"
	require.NoError(t, conn.Create(&models.Subscription{
		OwnerID:          owner,
		Status:           enums.SubscriptionStatusIncomplete,
		TrialStartsAt:    &trialStart,
		TrialEndsAt:      &trialEnd,
		StripeCustomerID: &customer,
	}).Error)

	periodEnd := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	updated, err := repo.ApplyProcessorState(ctx, owner, ProcessorState{
		SubscriptionID:   "sub_1",
		Status:           enums.SubscriptionStatusActive,
		CurrentPeriodEnd: &periodEnd,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, enums.SubscriptionStatusActive, updated.Status)
	require.NotNil(t, updated.CurrentPeriodEnd)
	assert.True(t, updated.CurrentPeriodEnd.Equal(periodEnd))
	require.NotNil(t, updated.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *updated.StripeSubscriptionID)
	assert.Nil(t, updated.CanceledAt)
	require.NotNil(t, updated.TrialStartsAt)
	assert.True(t, updated.TrialStartsAt.Equal(trialStart))
	assert.True(t, updated.TrialEndsAt.Equal(trialEnd))
	assert.Equal(t, customer, *updated.StripeCustomerID)
}

func TestRepositoryApplyProcessorStateMissingRecord(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	_, err := repo.ApplyProcessorState(context.Background(), uuid.New(), ProcessorState{Status: enums.SubscriptionStatusActive})
	require.Error(t, err)
}

func TestRepositoryListForReconciliation(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.OpenSQLite(t)
	repo := NewRepository(conn)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	seed := func(status enums.SubscriptionStatus, customer string, periodEnd *time.Time) uuid.UUID {
		owner := uuid.New()
		sub := &models.Subscription{OwnerID: owner, Status: status, CurrentPeriodEnd: periodEnd}
		if customer != "" {
			sub.StripeCustomerID = &customer
		}
		require.NoError(t, conn.Create(sub).Error)
		return owner
	}

	pastDue := seed(enums.SubscriptionStatusPastDue, "cus_past_due", nil)
	lapsed := seed(enums.SubscriptionStatusActive, "cus_lapsed", &past)
	seed(enums.SubscriptionStatusActive, "cus_current", &future)
	seed(enums.SubscriptionStatusIncomplete, "", nil)
	seed(enums.SubscriptionStatusCanceled, "cus_canceled", &past)

	subs, err := repo.ListForReconciliation(ctx, now, 10)
	require.NoError(t, err)

	owners := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		owners = append(owners, sub.OwnerID)
	}
	assert.ElementsMatch(t, []uuid.UUID{pastDue, lapsed}, owners)

	limited, err := repo.ListForReconciliation(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
