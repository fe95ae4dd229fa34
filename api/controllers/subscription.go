package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/api/responses"
	"github.com/angelmondragon/appointly-backend/api/validators"
	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/internal/gate"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

type statusAuthorizer interface {
	Authorize(ctx context.Context, sess *session.Session, targetOwnerID uuid.UUID, opts gate.Options) (*gate.Outcome, error)
}

type ownerAuthorizer interface {
	AuthorizeMember(ctx context.Context, userID, businessID uuid.UUID) (uuid.UUID, error)
	AuthorizeOwner(ctx context.Context, userID, ownerID uuid.UUID) error
}

// SubscriptionStatusResponse is the body of GET /subscription/status.
type SubscriptionStatusResponse struct {
	OwnerID      uuid.UUID        `json:"owner_id"`
	Subscription *access.Snapshot `json:"subscription"`
	Rotated      bool             `json:"rotated"`
	Degraded     bool             `json:"degraded"`
	Tier         access.Tier      `json:"tier,omitempty"`
}

// SubscriptionStatus reports a subscription without denying. bypass=true is
// the checkout-return path; owner_id or business_id address another owner the
// caller holds a grant for.
func SubscriptionStatus(authz statusAuthorizer, owners ownerAuthorizer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, ok := session.FromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		bypass, err := validators.ParseQueryBool(r, "bypass")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ownerID, err := validators.ParseQueryUUID(r, "owner_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		businessID, err := validators.ParseQueryUUID(r, "business_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if ownerID != uuid.Nil && businessID != uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "owner_id and business_id are mutually exclusive"))
			return
		}

		target := sess.OwnerID
		switch {
		case businessID != uuid.Nil:
			target, err = owners.AuthorizeMember(ctx, sess.OwnerID, businessID)
		case ownerID != uuid.Nil:
			target, err = ownerID, owners.AuthorizeOwner(ctx, sess.OwnerID, ownerID)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		reason := session.ReasonRefresh
		if bypass {
			reason = session.ReasonCheckoutReturn
		}
		outcome, err := authz.Authorize(ctx, sess, target, gate.Options{Bypass: bypass, ReportOnly: true, Reason: reason})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(ctx, w, SubscriptionStatusResponse{
			OwnerID:      target,
			Subscription: outcome.Decision.Snapshot,
			Rotated:      outcome.Issued != nil,
			Degraded:     outcome.Decision.FailedOpen,
			Tier:         outcome.Decision.Tier,
		})
	}
}
