package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

type resolver interface {
	Resolve(ctx context.Context, req access.Request) (access.Resolution, error)
}

type sessionManager interface {
	Verify(token string) (*session.Session, error)
	Rotate(reason session.Reason, id session.Identity, snap *access.Snapshot, grants []uuid.UUID) (*session.Issued, error)
}

// GrantLoader returns the businesses an owner may act on through delegated grants.
type GrantLoader interface {
	PermittedBusinessIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Options tunes one enforcement call.
type Options struct {
	// Bypass skips the embedded snapshot and allows processor reconciliation.
	Bypass bool
	// ReportOnly resolves and rotates but never denies.
	ReportOnly bool
	// Reason labels a rotation; defaults to refresh.
	Reason session.Reason
}

// Outcome is the result of an allowed (or report-only) enforcement.
type Outcome struct {
	Session  *session.Session
	Decision access.Decision
	// Issued is set when the caller's session was rotated.
	Issued *session.Issued
}

// Params groups Enforcer dependencies. Grants is optional; without it a
// rotated session keeps the grants of the presented token.
type Params struct {
	Sessions sessionManager
	Resolver resolver
	Policy   *access.Policy
	Grants   GrantLoader
	Logger   *logger.Logger
}

// Enforcer authenticates a session token and gates access on the target
// owner's subscription.
type Enforcer struct {
	sessions sessionManager
	resolver resolver
	policy   *access.Policy
	grants   GrantLoader
	logg     *logger.Logger
}

// NewEnforcer builds an Enforcer.
func NewEnforcer(p Params) (*Enforcer, error) {
	if p.Sessions == nil {
		return nil, errors.New("session manager required")
	}
	if p.Resolver == nil {
		return nil, errors.New("access resolver required")
	}
	policy := p.Policy
	if policy == nil {
		policy = access.NewPolicy(p.Logger, nil)
	}
	return &Enforcer{
		sessions: p.Sessions,
		resolver: p.Resolver,
		policy:   policy,
		grants:   p.Grants,
		logg:     p.Logger,
	}, nil
}

// Enforce verifies token and then authorizes it against targetOwnerID.
func (e *Enforcer) Enforce(ctx context.Context, token string, targetOwnerID uuid.UUID, opts Options) (*Outcome, error) {
	sess, err := e.Authenticate(token)
	if err != nil {
		return nil, err
	}
	return e.Authorize(ctx, sess, targetOwnerID, opts)
}

// Authenticate verifies the session token. Failures never fail open.
func (e *Enforcer) Authenticate(token string) (*session.Session, error) {
	sess, err := e.sessions.Verify(token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "authentication required")
	}
	return sess, nil
}

// Authorize resolves targetOwnerID's access for an authenticated session.
// The embedded snapshot is consulted and the session rotated only when the
// target is the session's own owner.
func (e *Enforcer) Authorize(ctx context.Context, sess *session.Session, targetOwnerID uuid.UUID, opts Options) (*Outcome, error) {
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if targetOwnerID == uuid.Nil {
		targetOwnerID = sess.OwnerID
	}
	own := targetOwnerID == sess.OwnerID

	req := access.Request{OwnerID: targetOwnerID, Bypass: opts.Bypass}
	var fallback *access.Snapshot
	if own {
		req.Cached = sess.Snapshot
		fallback = sess.Snapshot
	}

	res, resErr := e.resolver.Resolve(ctx, req)
	decision := e.policy.Decide(ctx, targetOwnerID, res, resErr, fallback)
	outcome := &Outcome{Session: sess, Decision: decision}

	if !opts.ReportOnly {
		if denied := decision.Denied(targetOwnerID); denied != nil {
			return nil, denied
		}
	}

	if own && decision.Rotate && !decision.FailedOpen && decision.Snapshot != nil {
		issued, err := e.rotate(ctx, sess, decision.Snapshot, opts.Reason)
		if err != nil {
			return nil, err
		}
		outcome.Issued = issued
	}
	return outcome, nil
}

// Refresh recomputes the caller's own snapshot, skipping the embedded one,
// and rotates the session. It never denies.
func (e *Enforcer) Refresh(ctx context.Context, sess *session.Session, reason session.Reason) (*Outcome, error) {
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return e.Authorize(ctx, sess, sess.OwnerID, Options{Bypass: true, ReportOnly: true, Reason: reason})
}

// Rotate reissues sess with snap and the owner's current grants.
func (e *Enforcer) Rotate(ctx context.Context, sess *session.Session, snap *access.Snapshot, reason session.Reason) (*session.Issued, error) {
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return e.rotate(ctx, sess, snap, reason)
}

func (e *Enforcer) rotate(ctx context.Context, sess *session.Session, snap *access.Snapshot, reason session.Reason) (*session.Issued, error) {
	if reason == "" {
		reason = session.ReasonRefresh
	}
	grants := sess.PermittedBusinessIDs
	if e.grants != nil {
		loaded, err := e.grants.PermittedBusinessIDs(ctx, sess.OwnerID)
		if err != nil {
			if e.logg != nil {
				logCtx := e.logg.WithOwnerID(ctx, sess.OwnerID.String())
				e.logg.Error(logCtx, "session.grants_reload_failed", err)
			}
		} else {
			grants = loaded
		}
	}
	issued, err := e.sessions.Rotate(reason, sess.Identity, snap, grants)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("rotate session: %w", err), "failed to refresh session")
	}
	session.RecordIssued(ctx, issued)
	return issued, nil
}
