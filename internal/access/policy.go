package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
	"github.com/angelmondragon/appointly-backend/pkg/metrics"
)

const kindInternal = "internal"

// DeniedError carries the normalized status so clients can offer the right
// remediation (pay, resubscribe, start over).
type DeniedError struct {
	OwnerID  uuid.UUID
	Snapshot Snapshot
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied for %s: %s", e.OwnerID, e.Snapshot.Status)
}

// APIError renders the denial as an ACCESS_DENIED error with remediation details.
func (e *DeniedError) APIError() *pkgerrors.Error {
	details := map[string]any{
		"status":        e.Snapshot.Status,
		"needs_payment": e.Snapshot.NeedsPayment,
	}
	if e.Snapshot.Status == enums.AccessStatusTrialing {
		details["days_left"] = e.Snapshot.DaysLeft
	}
	return pkgerrors.Wrap(pkgerrors.CodeAccessDenied, e, "subscription required").WithDetails(details)
}

// Decision is the policy outcome for one resolution attempt.
type Decision struct {
	// Snapshot is nil only when resolution failed and no same-owner snapshot
	// was available.
	Snapshot   *Snapshot
	Allowed    bool
	Rotate     bool
	FailedOpen bool
	Tier       Tier
}

// Denied returns the denial for a disallowed decision.
func (d Decision) Denied(ownerID uuid.UUID) *DeniedError {
	if d.Allowed || d.Snapshot == nil {
		return nil
	}
	return &DeniedError{OwnerID: ownerID, Snapshot: *d.Snapshot}
}

// Policy turns resolver results into allow/deny decisions. Resolution
// failures are granted: an outage must not lock paying owners out.
type Policy struct {
	logg    *logger.Logger
	metrics *metrics.AccessMetrics
}

// NewPolicy builds a Policy. Both dependencies may be nil.
func NewPolicy(logg *logger.Logger, m *metrics.AccessMetrics) *Policy {
	return &Policy{logg: logg, metrics: m}
}

// Decide converts a resolution (or its error) into a Decision. fallback is the
// caller's embedded snapshot for the same owner, reported back on fail-open.
func (p *Policy) Decide(ctx context.Context, ownerID uuid.UUID, res Resolution, err error, fallback *Snapshot) Decision {
	if err != nil {
		kind := kindInternal
		var resErr *ResolutionError
		if errors.As(err, &resErr) {
			kind = string(resErr.Kind)
		}
		p.metrics.IncFailOpen(kind)
		if p.logg != nil {
			logCtx := p.logg.WithFields(ctx, map[string]any{
				"owner_id": ownerID.String(),
				"kind":     kind,
			})
			p.logg.Error(logCtx, "access.fail_open", err)
		}
		var snap *Snapshot
		if fallback != nil && fallback.OwnerID == ownerID {
			copied := *fallback
			snap = &copied
		}
		return Decision{Snapshot: snap, Allowed: true, FailedOpen: true}
	}

	snap := res.Snapshot
	decision := Decision{
		Snapshot: &snap,
		Allowed:  snap.Status.GrantsAccess(),
		Rotate:   res.Rotate,
		Tier:     res.Tier,
	}
	if !decision.Allowed {
		p.metrics.IncDenied(string(snap.Status))
	}
	return decision
}
