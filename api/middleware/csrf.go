package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/angelmondragon/appointly-backend/api/responses"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

const (
	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "csrf_token"
)

type csrfVerifier interface {
	VerifyCSRF(s *session.Session, csrfToken string) error
}

// CSRF requires a CSRF token matching the session on state-changing methods.
// It must run after RequireSession.
func CSRF(verifier csrfVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			sess, ok := session.FromContext(ctx)
			if !ok {
				responses.WriteError(ctx, logg, w, errMissingSession)
				return
			}
			if err := verifier.VerifyCSRF(sess, csrfToken(r)); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "invalid csrf token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func csrfToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(csrfHeader)); token != "" {
		return token
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		return strings.TrimSpace(r.PostFormValue(csrfFormField))
	}
	return ""
}
