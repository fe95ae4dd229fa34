package controllers

import (
	"net/http"

	"github.com/angelmondragon/appointly-backend/api/responses"
	"github.com/angelmondragon/appointly-backend/api/validators"
	"github.com/angelmondragon/appointly-backend/internal/auth"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

type cookieClearer interface {
	ClearCookie(w http.ResponseWriter)
}

// AuthTelegramLogin wires the Telegram mini-app login into the HTTP layer.
func AuthTelegramLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body auth.TelegramLoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.LoginTelegram(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session.RecordIssued(r.Context(), result.Issued)
		responses.WriteSuccess(r.Context(), w, result.Response())
	}
}

// AuthLogout clears the session cookie. Issued tokens stay valid until they expire.
func AuthLogout(cookies cookieClearer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookies.ClearCookie(w)
		responses.WriteSuccess(r.Context(), w, map[string]bool{"logged_out": true})
	}
}
