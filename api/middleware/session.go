package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/api/responses"
	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/internal/gate"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

type cookieWriter interface {
	ReplaceCookie(w http.ResponseWriter, issued *session.Issued)
	TokenFromRequest(r *http.Request) string
}

type authenticator interface {
	Authenticate(token string) (*session.Session, error)
}

type authorizer interface {
	Authorize(ctx context.Context, sess *session.Session, targetOwnerID uuid.UUID, opts gate.Options) (*gate.Outcome, error)
}

// SessionCookies installs the per-request holder for rotated sessions. Every
// rotation rewrites the session cookie and the X-CSRF-Token response header.
func SessionCookies(cookies cookieWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			holder := session.NewIssuedHolder(func(issued *session.Issued) {
				cookies.ReplaceCookie(w, issued)
				w.Header().Set(csrfHeader, issued.CSRFToken)
			})
			ctx := session.WithIssuedHolder(r.Context(), holder)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession verifies the session token from the Authorization header or
// the session cookie. It never fails open.
func RequireSession(cookies cookieWriter, auth authenticator, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := auth.Authenticate(cookies.TokenFromRequest(r))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := session.WithSession(r.Context(), sess)
			if logg != nil {
				ctx = logg.WithOwnerID(ctx, sess.OwnerID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAccess gates the route on the caller's own subscription.
func RequireAccess(authz authorizer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, ok := session.FromContext(ctx)
			if !ok {
				responses.WriteError(ctx, logg, w, errMissingSession)
				return
			}
			outcome, err := authz.Authorize(ctx, sess, sess.OwnerID, gate.Options{})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withDecision(ctx, logg, outcome.Decision)))
		})
	}
}

func withDecision(ctx context.Context, logg *logger.Logger, decision access.Decision) context.Context {
	if logg != nil && decision.FailedOpen {
		ctx = logg.WithField(ctx, "access_degraded", true)
	}
	return WithDecision(ctx, decision)
}
