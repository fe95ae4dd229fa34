package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/api/responses"
	"github.com/angelmondragon/appointly-backend/internal/gate"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

// BusinessIDParam is the chi route parameter naming the business.
const BusinessIDParam = "businessId"

var errMissingSession = pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")

type memberAuthorizer interface {
	AuthorizeMember(ctx context.Context, userID, businessID uuid.UUID) (uuid.UUID, error)
}

// RequireBusinessAccess gates the route on the subscription of the business
// owner. The caller must own the business or hold a grant on it; a delegated
// caller's own session is never rotated here.
func RequireBusinessAccess(members memberAuthorizer, authz authorizer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, ok := session.FromContext(ctx)
			if !ok {
				responses.WriteError(ctx, logg, w, errMissingSession)
				return
			}
			businessID, err := uuid.Parse(chi.URLParam(r, BusinessIDParam))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid business id"))
				return
			}
			if logg != nil {
				ctx = logg.WithBusinessID(ctx, businessID.String())
			}

			ownerID, err := members.AuthorizeMember(ctx, sess.OwnerID, businessID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			outcome, err := authz.Authorize(ctx, sess, ownerID, gate.Options{})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			ctx = WithBusinessOwner(ctx, ownerID)
			next.ServeHTTP(w, r.WithContext(withDecision(ctx, logg, outcome.Decision)))
		})
	}
}
