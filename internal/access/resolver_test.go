package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/appointly-backend/internal/subscriptions"
	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

const testCacheTTL = 5 * time.Minute

type fakeRecords struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*models.Subscription
	findCalls int
	findErr   error
	applyErr  error
	applied   []subscriptions.ProcessorState
}

func newFakeRecords(records ...*models.Subscription) *fakeRecords {
	f := &fakeRecords{records: map[uuid.UUID]*models.Subscription{}}
	for _, r := range records {
		f.records[r.OwnerID] = r
	}
	return f
}

func (f *fakeRecords) FindByOwner(_ context.Context, ownerID uuid.UUID) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	rec, ok := f.records[ownerID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeRecords) ApplyProcessorState(_ context.Context, ownerID uuid.UUID, state subscriptions.ProcessorState) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	rec := f.records[ownerID]
	rec.Status = state.Status
	rec.CurrentPeriodEnd = state.CurrentPeriodEnd
	rec.CanceledAt = state.CanceledAt
	f.applied = append(f.applied, state)
	copied := *rec
	return &copied, nil
}

type fakeProcessor struct {
	state *subscriptions.ProcessorState
	err   error
	calls int
}

func (f *fakeProcessor) FetchLatest(_ context.Context, _ string) (*subscriptions.ProcessorState, error) {
	f.calls++
	return f.state, f.err
}

type fakeLock struct{ released *bool }

func (l fakeLock) Release(context.Context) error {
	*l.released = true
	return nil
}

type fakeLocker struct {
	held     bool
	err      error
	released bool
}

func (f *fakeLocker) Acquire(context.Context, uuid.UUID) (subscriptions.Lock, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held {
		return nil, false, nil
	}
	return fakeLock{released: &f.released}, true, nil
}

func newTestResolver(t *testing.T, records *fakeRecords, processor processorClient, locker reconcileLocker) *Resolver {
	t.Helper()
	params := ResolverParams{
		Records:  records,
		Locker:   locker,
		CacheTTL: testCacheTTL,
		Now:      func() time.Time { return testNow },
	}
	if processor != nil {
		params.Processor = processor
	}
	resolver, err := NewResolver(params)
	require.NoError(t, err)
	return resolver
}

func incompleteWithCustomer(owner uuid.UUID) *models.Subscription {
	customer := "cus_1"
	return &models.Subscription{OwnerID: owner, Status: enums.SubscriptionStatusIncomplete, StripeCustomerID: &customer}
}

func TestResolveFreshEmbeddedSnapshotPerformsNoIO(t *testing.T) {
	owner := uuid.New()
	records := newFakeRecords()
	processor := &fakeProcessor{}
	resolver := newTestResolver(t, records, processor, nil)

	cached := Snapshot{OwnerID: owner, Status: enums.AccessStatusTrialing, HasAccess: true, DaysLeft: 4, CheckedAt: testNow.Add(-4 * time.Minute)}
	res, err := resolver.Resolve(context.Background(), Request{OwnerID: owner, Cached: &cached})
	require.NoError(t, err)
	assert.Equal(t, TierEmbedded, res.Tier)
	assert.False(t, res.Rotate)
	assert.Equal(t, cached, res.Snapshot)
	assert.Zero(t, records.findCalls)
	assert.Zero(t, processor.calls)
}

func TestResolveRecomputesStaleOrBypassedSnapshot(t *testing.T) {
	owner := uuid.New()
	record := &models.Subscription{OwnerID: owner, Status: enums.SubscriptionStatusActive, CurrentPeriodEnd: at(10 * day)}

	cases := map[string]Request{
		"absent":   {OwnerID: owner},
		"stale":    {OwnerID: owner, Cached: &Snapshot{OwnerID: owner, Status: enums.AccessStatusTrialing, CheckedAt: testNow.Add(-testCacheTTL)}},
		"bypassed": {OwnerID: owner, Cached: &Snapshot{OwnerID: owner, Status: enums.AccessStatusTrialing, CheckedAt: testNow}, Bypass: true},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			records := newFakeRecords(record)
			resolver := newTestResolver(t, records, nil, nil)
			res, err := resolver.Resolve(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, TierAuthoritative, res.Tier)
			assert.True(t, res.Rotate)
			assert.Equal(t, enums.AccessStatusActive, res.Snapshot.Status)
			assert.Equal(t, owner, res.Snapshot.OwnerID)
			assert.Equal(t, 1, records.findCalls)
		})
	}
}

func TestResolveIgnoresSnapshotForAnotherOwner(t *testing.T) {
	caller := uuid.New()
	target := uuid.New()
	records := newFakeRecords(&models.Subscription{OwnerID: target, TrialEndsAt: at(-day)})
	resolver := newTestResolver(t, records, nil, nil)

	callerSnap := Snapshot{OwnerID: caller, Status: enums.AccessStatusActive, HasAccess: true, CheckedAt: testNow}
	res, err := resolver.Resolve(context.Background(), Request{OwnerID: target, Cached: &callerSnap})
	require.NoError(t, err)
	assert.Equal(t, TierAuthoritative, res.Tier)
	assert.Equal(t, enums.AccessStatusTrialExpired, res.Snapshot.Status)
	assert.Equal(t, target, res.Snapshot.OwnerID)
	assert.Equal(t, 1, records.findCalls)
}

func TestResolveMissingRecordIsIncomplete(t *testing.T) {
	owner := uuid.New()
	resolver := newTestResolver(t, newFakeRecords(), &fakeProcessor{}, nil)
	res, err := resolver.Resolve(context.Background(), Request{OwnerID: owner, Bypass: true})
	require.NoError(t, err)
	assert.Equal(t, enums.AccessStatusIncomplete, res.Snapshot.Status)
	assert.Equal(t, owner, res.Snapshot.OwnerID)
	assert.Equal(t, TierAuthoritative, res.Tier)
}

func TestResolveCheckedAtNeverMovesBackwards(t *testing.T) {
	owner := uuid.New()
	records := newFakeRecords(&models.Subscription{OwnerID: owner, CurrentPeriodEnd: at(day)})
	resolver := newTestResolver(t, records, nil, nil)
	future := testNow.Add(time.Minute)
	cached := Snapshot{OwnerID: owner, Status: enums.AccessStatusActive, CheckedAt: future}

	res, err := resolver.Resolve(context.Background(), Request{OwnerID: owner, Cached: &cached, Bypass: true})
	require.NoError(t, err)
	assert.True(t, res.Snapshot.CheckedAt.Equal(future))
}

func TestResolveReconcilesIncompleteOnBypass(t *testing.T) {
	owner := uuid.New()
	records := newFakeRecords(incompleteWithCustomer(owner))
	processor := &fakeProcessor{state: &subscriptions.ProcessorState{
		SubscriptionID:   "sub_9",
		Status:           enums.SubscriptionStatusActive,
		CurrentPeriodEnd: at(30 * day),
	}}
	locker := &fakeLocker{}
	resolver := newTestResolver(t, records, processor, locker)

	res, err := resolver.Resolve(context.Background(), Request{OwnerID: owner, Bypass: true})
	require.NoError(t, err)
	assert.Equal(t, TierReconciled, res.Tier)
	assert.True(t, res.Rotate)
	assert.Equal(t, enums.AccessStatusActive, res.Snapshot.Status)
	assert.True(t, res.Snapshot.HasAccess)
	assert.Equal(t, 1, processor.calls)
	require.Len(t, records.applied, 1)
	assert.True(t, locker.released)
}

func TestResolveSkipsReconcileWithoutBypass(t *testing.T) {
	owner := uuid.New()
	processor := &fakeProcessor{state: &subscriptions.ProcessorState{Status: enums.SubscriptionStatusActive, CurrentPeriodEnd: at(day)}}
	resolver := newTestResolver(t, newFakeRecords(incompleteWithCustomer(owner)), processor, nil)

	res, err := resolver.Resolve(context.Background(), Request{OwnerID: owner})
	require.NoError(t, err)
	assert.Equal(t, enums.AccessStatusIncomplete, res.Snapshot.Status)
	assert.Zero(t, processor.calls)
}

func TestResolveSkipsReconcileWhenStatusIsDecided(t *testing.T) {
	owner := uuid.New()
	record := incompleteWithCustomer(owner)
	record.TrialEndsAt = at(-day)
	processor := &fakeProcessor{}
	resolver := newTestResolver(t, newFakeRecords(record), processor, nil)

	res, err := resolver.Resolve(context.Background(), Request{OwnerID: owner, Bypass: true})
	require.NoError(t, err)
	assert.Equal(t, enums.AccessStatusTrialExpired, res.Snapshot.Status)
	assert.Zero(t, processor.calls)
}

func TestResolveLockHeldKeepsAuthoritativeResult(t *testing.T) {
	owner := uuid.New()
	processor := &fakeProcessor{}
	resolver := newTestResolver(t, newFakeRecords(incompleteWithCustomer(owner)), processor, &fakeLocker{held: true})

	res, err := resolver.Resolve(context.Background(), Request{OwnerID: owner, Bypass: true})
	require.NoError(t, err)
	assert.Equal(t, TierAuthoritative, res.Tier)
	assert.Equal(t, enums.AccessStatusIncomplete, res.Snapshot.Status)
	assert.Zero(t, processor.calls)
}

func TestResolveLockErrorStillReconciles(t *testing.T) {
	owner := uuid.New()
	processor := &fakeProcessor{state: &subscriptions.ProcessorState{Status: enums.SubscriptionStatusActive, CurrentPeriodEnd: at(day)}}
	resolver := newTestResolver(t, newFakeRecords(incompleteWithCustomer(owner)), processor, &fakeLocker{err: errors.New("redis down")})

	res, err := resolver.Resolve(context.Background(), Request{OwnerID: owner, Bypass: true})
	require.NoError(t, err)
	assert.Equal(t, TierReconciled, res.Tier)
	assert.Equal(t, 1, processor.calls)
}

func TestResolveEmptyProcessorStateKeepsRecord(t *testing.T) {
	owner := uuid.New()
	records := newFakeRecords(incompleteWithCustomer(owner))
	resolver := newTestResolver(t, records, &fakeProcessor{}, nil)

	res, err := resolver.Resolve(context.Background(), Request{OwnerID: owner, Bypass: true})
	require.NoError(t, err)
	assert.Equal(t, TierAuthoritative, res.Tier)
	assert.Empty(t, records.applied)
}

func TestResolveErrorsAreClassified(t *testing.T) {
	owner := uuid.New()

	records := newFakeRecords()
	records.findErr = errors.New("db down")
	_, err := newTestResolver(t, records, nil, nil).Resolve(context.Background(), Request{OwnerID: owner})
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, KindStorageUnavailable, resErr.Kind)
	assert.ErrorIs(t, err, records.findErr)

	processor := &fakeProcessor{err: errors.New("stripe down")}
	_, err = newTestResolver(t, newFakeRecords(incompleteWithCustomer(owner)), processor, nil).
		Resolve(context.Background(), Request{OwnerID: owner, Bypass: true})
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, KindProcessorUnavailable, resErr.Kind)

	records = newFakeRecords(incompleteWithCustomer(owner))
	records.applyErr = errors.New("write failed")
	processor = &fakeProcessor{state: &subscriptions.ProcessorState{Status: enums.SubscriptionStatusActive}}
	_, err = newTestResolver(t, records, processor, nil).Resolve(context.Background(), Request{OwnerID: owner, Bypass: true})
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, KindStorageUnavailable, resErr.Kind)
}

func TestNewResolverValidatesParams(t *testing.T) {
	_, err := NewResolver(ResolverParams{CacheTTL: time.Minute})
	require.Error(t, err)
	_, err = NewResolver(ResolverParams{Records: newFakeRecords()})
	require.Error(t, err)
}
