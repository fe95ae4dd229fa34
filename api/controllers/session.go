package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/api/middleware"
	"github.com/angelmondragon/appointly-backend/api/responses"
	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

// MeResponse describes the caller as seen by an access-gated route.
type MeResponse struct {
	OwnerID              uuid.UUID        `json:"owner_id"`
	DisplayName          string           `json:"display_name"`
	Username             string           `json:"username,omitempty"`
	PermittedBusinessIDs []uuid.UUID      `json:"permitted_business_ids"`
	Subscription         *access.Snapshot `json:"subscription"`
	Degraded             bool             `json:"degraded"`
}

// Me returns the caller's identity; it sits behind RequireAccess.
func Me(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, ok := session.FromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, errNoSession)
			return
		}
		resp := MeResponse{
			OwnerID:              sess.OwnerID,
			DisplayName:          sess.DisplayName,
			Username:             sess.Username,
			PermittedBusinessIDs: sess.PermittedBusinessIDs,
			Subscription:         sess.Snapshot,
		}
		if decision, ok := middleware.DecisionFromContext(ctx); ok {
			resp.Subscription = decision.Snapshot
			resp.Degraded = decision.FailedOpen
		}
		if issued, ok := session.IssuedFromContext(ctx); ok {
			resp.PermittedBusinessIDs = issued.Session.PermittedBusinessIDs
		}
		if resp.PermittedBusinessIDs == nil {
			resp.PermittedBusinessIDs = []uuid.UUID{}
		}
		responses.WriteSuccess(ctx, w, resp)
	}
}
