package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/internal/subscriptions"
	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
	"github.com/angelmondragon/appointly-backend/pkg/metrics"
)

// Tier names the level of the resolution protocol that produced a snapshot.
type Tier string

const (
	TierEmbedded      Tier = "embedded"
	TierAuthoritative Tier = "authoritative"
	TierReconciled    Tier = "reconciled"
)

// ErrorKind classifies infrastructure failures during resolution.
type ErrorKind string

const (
	KindStorageUnavailable   ErrorKind = "storage_unavailable"
	KindProcessorUnavailable ErrorKind = "processor_unavailable"
)

// ResolutionError is returned when tier 2 or tier 3 could not complete.
type ResolutionError struct {
	Kind    ErrorKind
	OwnerID uuid.UUID
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve access for %s: %s: %v", e.OwnerID, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type recordStore interface {
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error)
	ApplyProcessorState(ctx context.Context, ownerID uuid.UUID, state subscriptions.ProcessorState) (*models.Subscription, error)
}

type processorClient interface {
	FetchLatest(ctx context.Context, customerID string) (*subscriptions.ProcessorState, error)
}

type reconcileLocker interface {
	Acquire(ctx context.Context, ownerID uuid.UUID) (subscriptions.Lock, bool, error)
}

// Request asks for the access state of OwnerID. Cached is the snapshot carried
// by the caller's session, if any.
type Request struct {
	OwnerID uuid.UUID
	Cached  *Snapshot
	Bypass  bool
}

// Resolution is a successful answer. Rotate is set whenever the snapshot was
// recomputed or a bypass was requested.
type Resolution struct {
	Snapshot Snapshot
	Rotate   bool
	Tier     Tier
}

// ResolverParams groups dependencies for the resolver. Processor and Locker
// are optional; without a processor tier 3 never runs.
type ResolverParams struct {
	Records   recordStore
	Processor processorClient
	Locker    reconcileLocker
	CacheTTL  time.Duration
	Metrics   *metrics.AccessMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Resolver answers "what is this owner's access right now" using the
// embedded snapshot, the stored record, and the payment processor in turn.
type Resolver struct {
	records   recordStore
	processor processorClient
	locker    reconcileLocker
	cacheTTL  time.Duration
	metrics   *metrics.AccessMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewResolver validates the params and builds a Resolver.
func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Records == nil {
		return nil, errors.New("subscription records required")
	}
	if params.CacheTTL <= 0 {
		return nil, errors.New("cache ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		records:   params.Records,
		processor: params.Processor,
		locker:    params.Locker,
		cacheTTL:  params.CacheTTL,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Resolve returns the owner's snapshot. Errors are always *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	now := r.now().UTC()
	cached := r.ownCached(req)

	if cached != nil && !req.Bypass && cached.FreshAt(now, r.cacheTTL) {
		r.metrics.IncResolution(string(TierEmbedded))
		return Resolution{Snapshot: *cached, Tier: TierEmbedded}, nil
	}

	record, err := r.records.FindByOwner(ctx, req.OwnerID)
	if err != nil {
		return Resolution{}, &ResolutionError{Kind: KindStorageUnavailable, OwnerID: req.OwnerID, Err: err}
	}
	if record == nil {
		record = &models.Subscription{OwnerID: req.OwnerID, Status: enums.SubscriptionStatusNone}
	}

	snap := Calculate(record, now)
	tier := TierAuthoritative

	if req.Bypass && snap.Status == enums.AccessStatusIncomplete && r.canReconcile(record) {
		reconciled, ok, err := r.reconcile(ctx, record)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			snap = Calculate(reconciled, now)
			tier = TierReconciled
		}
	}

	if cached != nil && cached.CheckedAt.After(snap.CheckedAt) {
		snap.CheckedAt = cached.CheckedAt
	}

	r.metrics.IncResolution(string(tier))
	return Resolution{Snapshot: snap, Rotate: true, Tier: tier}, nil
}

// ownCached drops a cached snapshot that belongs to a different owner.
func (r *Resolver) ownCached(req Request) *Snapshot {
	if req.Cached == nil || req.Cached.OwnerID != req.OwnerID {
		return nil
	}
	return req.Cached
}

func (r *Resolver) canReconcile(record *models.Subscription) bool {
	return r.processor != nil && record.StripeCustomerID != nil && strings.TrimSpace(*record.StripeCustomerID) != ""
}

// reconcile reads the live processor state and writes it into the record.
// It reports false when another request holds the owner's lock or the
// processor has nothing for the customer.
func (r *Resolver) reconcile(ctx context.Context, record *models.Subscription) (*models.Subscription, bool, error) {
	if r.locker != nil {
		lock, acquired, err := r.locker.Acquire(ctx, record.OwnerID)
		switch {
		case err != nil:
			r.warn(ctx, record.OwnerID, "access.reconcile.lock_failed", err)
		case !acquired:
			return nil, false, nil
		default:
			defer func() {
				if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
					r.warn(ctx, record.OwnerID, "access.reconcile.unlock_failed", relErr)
				}
			}()
		}
	}

	started := time.Now()
	state, err := r.processor.FetchLatest(ctx, *record.StripeCustomerID)
	if err != nil {
		r.metrics.ObserveReconcile("failed", time.Since(started))
		return nil, false, &ResolutionError{Kind: KindProcessorUnavailable, OwnerID: record.OwnerID, Err: err}
	}
	if state == nil {
		r.metrics.ObserveReconcile("empty", time.Since(started))
		return nil, false, nil
	}

	updated, err := r.records.ApplyProcessorState(ctx, record.OwnerID, *state)
	if err != nil {
		r.metrics.ObserveReconcile("failed", time.Since(started))
		return nil, false, &ResolutionError{Kind: KindStorageUnavailable, OwnerID: record.OwnerID, Err: err}
	}
	r.metrics.ObserveReconcile("applied", time.Since(started))
	return updated, updated != nil, nil
}

func (r *Resolver) warn(ctx context.Context, ownerID uuid.UUID, msg string, err error) {
	if r.logg == nil {
		return
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{"owner_id": ownerID.String(), "error": err.Error()})
	r.logg.Warn(logCtx, msg)
}
