package session

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SetCookie writes the session token as an HttpOnly cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, issued *Issued) {
	if issued == nil {
		return
	}
	expires := issued.Session.ExpiresAt
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    issued.Token,
		Path:     "/",
		Domain:   m.cfg.CookieDomain,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReplaceCookie drops any session cookie already queued on w and writes the
// new one. Other cookies are left untouched.
func (m *Manager) ReplaceCookie(w http.ResponseWriter, issued *Issued) {
	if issued == nil {
		return
	}
	header := w.Header()
	prefix := m.cfg.CookieName + "="
	queued := header.Values("Set-Cookie")
	kept := queued[:0:0]
	for _, v := range queued {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	if len(kept) != len(queued) {
		header.Del("Set-Cookie")
		for _, v := range kept {
			header.Add("Set-Cookie", v)
		}
	}
	m.SetCookie(w, issued)
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.cfg.CookieDomain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func (m *Manager) TokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

type ctxKey string

const (
	sessionKey ctxKey = "session"
	issuedKey  ctxKey = "issued_session"
)

// WithSession stores the verified session on the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the verified session, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

// IssuedHolder collects a session rotated while a request is being served.
type IssuedHolder struct {
	issued *Issued
	onSet  func(*Issued)
}

// NewIssuedHolder returns a holder that calls onSet for every recorded session.
func NewIssuedHolder(onSet func(*Issued)) *IssuedHolder {
	return &IssuedHolder{onSet: onSet}
}

// Set records the latest rotated session.
func (h *IssuedHolder) Set(issued *Issued) {
	if h == nil || issued == nil {
		return
	}
	h.issued = issued
	if h.onSet != nil {
		h.onSet(issued)
	}
}

// Get returns the latest rotated session, if any.
func (h *IssuedHolder) Get() *Issued {
	if h == nil {
		return nil
	}
	return h.issued
}

// WithIssuedHolder attaches a holder that handlers and middleware share.
func WithIssuedHolder(ctx context.Context, h *IssuedHolder) context.Context {
	return context.WithValue(ctx, issuedKey, h)
}

// RecordIssued stores a rotated session on the request's holder.
func RecordIssued(ctx context.Context, issued *Issued) {
	if h, ok := ctx.Value(issuedKey).(*IssuedHolder); ok {
		h.Set(issued)
	}
}

// IssuedFromContext returns the session rotated during this request, if any.
func IssuedFromContext(ctx context.Context) (*Issued, bool) {
	h, ok := ctx.Value(issuedKey).(*IssuedHolder)
	if !ok {
		return nil, false
	}
	issued := h.Get()
	return issued, issued != nil
}
