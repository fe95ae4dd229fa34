package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/api/middleware"
	"github.com/angelmondragon/appointly-backend/api/responses"
	"github.com/angelmondragon/appointly-backend/api/validators"
	"github.com/angelmondragon/appointly-backend/internal/businesses"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

const businessNameMaxLen = 120

// InviteCodeParam is the chi route parameter naming an invite code.
const InviteCodeParam = "code"

var errNoSession = pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")

// BusinessCreate creates a business and starts the owner's trial if none was granted yet.
func BusinessCreate(svc businesses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, ok := session.FromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, errNoSession)
			return
		}

		var body businesses.CreateBusinessRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		body.Name = validators.SanitizeString(body.Name, businessNameMaxLen)

		result, err := svc.Create(ctx, sess, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(ctx, w, http.StatusCreated, result)
	}
}

// BusinessGet returns a business; RequireBusinessAccess has already checked membership and access.
func BusinessGet(svc businesses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		businessID, err := businessIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		business, err := svc.Get(ctx, businessID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(ctx, w, business)
	}
}

// InviteCreate issues an invite code for a business the caller owns.
func InviteCreate(svc businesses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, ok := session.FromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, errNoSession)
			return
		}
		businessID, err := businessIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		invite, err := svc.CreateInvite(ctx, sess, businessID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(ctx, w, http.StatusCreated, invite)
	}
}

// InviteAccept grants the caller permission on the invite's business.
func InviteAccept(svc businesses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, ok := session.FromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, errNoSession)
			return
		}
		result, err := svc.AcceptInvite(ctx, sess, chi.URLParam(r, InviteCodeParam))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(ctx, w, result)
	}
}

func businessIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, middleware.BusinessIDParam))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid business id")
	}
	return id, nil
}
