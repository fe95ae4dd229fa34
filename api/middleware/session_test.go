package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/api/responses"
	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/internal/gate"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	"github.com/angelmondragon/appointly-backend/pkg/config"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/types"
)

type stubResolver struct {
	snapshots map[uuid.UUID]access.Snapshot
	calls     []access.Request
}

func (s *stubResolver) Resolve(_ context.Context, req access.Request) (access.Resolution, error) {
	s.calls = append(s.calls, req)
	if req.Cached != nil && !req.Bypass && time.Since(req.Cached.CheckedAt) < time.Minute {
		return access.Resolution{Snapshot: *req.Cached, Tier: access.TierEmbedded}, nil
	}
	return access.Resolution{Snapshot: s.snapshots[req.OwnerID], Rotate: true, Tier: access.TierAuthoritative}, nil
}

type stubMembers struct {
	owners map[uuid.UUID]uuid.UUID
}

func (s stubMembers) AuthorizeMember(_ context.Context, _ uuid.UUID, businessID uuid.UUID) (uuid.UUID, error) {
	owner, ok := s.owners[businessID]
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "no access to this business")
	}
	return owner, nil
}

type harness struct {
	sessions *session.Manager
	enforcer *gate.Enforcer
	resolver *stubResolver
}

func newHarness(t *testing.T) harness {
	t.Helper()
	m, err := session.NewManager(config.SessionConfig{
		Secret:     "middleware-secret",
		Issuer:     "appointly-test",
		TTLMinutes: 60,
		CookieName: "appointly_session",
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	res := &stubResolver{snapshots: map[uuid.UUID]access.Snapshot{}}
	e, err := gate.NewEnforcer(gate.Params{Sessions: m, Resolver: res})
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	return harness{sessions: m, enforcer: e, resolver: res}
}

func (h harness) setStatus(owner uuid.UUID, status enums.AccessStatus) {
	h.resolver.snapshots[owner] = access.Snapshot{
		OwnerID:   owner,
		Status:    status,
		HasAccess: status.GrantsAccess(),
		CheckedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func (h harness) issue(t *testing.T, owner uuid.UUID, snap *access.Snapshot) *session.Issued {
	t.Helper()
	issued, err := h.sessions.Issue(session.Identity{OwnerID: owner}, snap, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return issued
}

func (h harness) protected(next http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(SessionCookies(h.sessions))
	r.Use(RequireSession(h.sessions, h.enforcer, nil))
	r.Use(CSRF(h.sessions, nil))
	r.Group(func(r chi.Router) {
		r.Use(RequireAccess(h.enforcer, nil))
		r.Get("/own", next.ServeHTTP)
		r.Post("/own", next.ServeHTTP)
	})
	return r
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	responses.WriteSuccess(r.Context(), w, map[string]string{"ok": "yes"})
}

func TestRequireSessionRejectsMissingToken(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.protected(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/own", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAccessAllowsFreshEmbeddedSnapshot(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	snap := &access.Snapshot{OwnerID: owner, Status: enums.AccessStatusActive, HasAccess: true, CheckedAt: time.Now().UTC()}
	issued := h.issue(t, owner, snap)

	req := httptest.NewRequest(http.MethodGet, "/own", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec := httptest.NewRecorder()
	h.protected(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Fatalf("no rotation expected for a fresh snapshot")
	}
}

func TestRequireAccessRotatesStaleSnapshot(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.setStatus(owner, enums.AccessStatusActive)
	issued := h.issue(t, owner, nil)

	req := httptest.NewRequest(http.MethodGet, "/own", nil)
	req.AddCookie(&http.Cookie{Name: "appointly_session", Value: issued.Token})
	rec := httptest.NewRecorder()
	h.protected(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.NewCSRFToken == "" || body.NewCSRFToken == issued.CSRFToken {
		t.Fatalf("expected a new csrf token, got %q", body.NewCSRFToken)
	}
	if rec.Header().Get("X-CSRF-Token") != body.NewCSRFToken {
		t.Fatalf("expected csrf header to match body")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "appointly_session" {
		t.Fatalf("expected rotated session cookie, got %v", cookies)
	}
	rotated, err := h.sessions.Verify(cookies[0].Value)
	if err != nil {
		t.Fatalf("verify rotated: %v", err)
	}
	if err := h.sessions.VerifyCSRF(rotated, body.NewCSRFToken); err != nil {
		t.Fatalf("rotated csrf: %v", err)
	}
}

func TestRequireAccessDeniesExpiredTrial(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.setStatus(owner, enums.AccessStatusTrialExpired)
	issued := h.issue(t, owner, nil)

	req := httptest.NewRequest(http.MethodGet, "/own", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec := httptest.NewRecorder()
	h.protected(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeAccessDenied) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	details := body.Error.Details.(map[string]any)
	if details["status"] != "trial_expired" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestCSRFRequiredOnUnsafeMethods(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	snap := &access.Snapshot{OwnerID: owner, Status: enums.AccessStatusActive, HasAccess: true, CheckedAt: time.Now().UTC()}
	issued := h.issue(t, owner, snap)
	handler := h.protected(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/own", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/own", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	req.Header.Set("X-CSRF-Token", issued.CSRFToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with csrf header, got %d", rec.Code)
	}

	form := strings.NewReader("csrf_token=" + issued.CSRFToken)
	req = httptest.NewRequest(http.MethodPost, "/own", form)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with csrf form field, got %d", rec.Code)
	}
}

func TestRequireBusinessAccessUsesOwnerSubscription(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	member := uuid.New()
	businessID := uuid.New()
	h.setStatus(owner, enums.AccessStatusActive)
	h.setStatus(member, enums.AccessStatusTrialExpired)
	members := stubMembers{owners: map[uuid.UUID]uuid.UUID{businessID: owner}}

	var seenOwner uuid.UUID
	r := chi.NewRouter()
	r.Use(SessionCookies(h.sessions))
	r.Use(RequireSession(h.sessions, h.enforcer, nil))
	r.With(RequireBusinessAccess(members, h.enforcer, nil)).Get("/businesses/{businessId}", func(w http.ResponseWriter, r *http.Request) {
		seenOwner = BusinessOwnerFromContext(r.Context())
		okHandler(w, r)
	})

	memberSnap := &access.Snapshot{OwnerID: member, Status: enums.AccessStatusTrialExpired, CheckedAt: time.Now().UTC()}
	issued := h.issue(t, member, memberSnap)
	req := httptest.NewRequest(http.MethodGet, "/businesses/"+businessID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via owner's subscription, got %d: %s", rec.Code, rec.Body.String())
	}
	if seenOwner != owner {
		t.Fatalf("expected owner in context")
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Fatalf("delegated access must not rotate the caller's session")
	}
	last := h.resolver.calls[len(h.resolver.calls)-1]
	if last.OwnerID != owner || last.Cached != nil {
		t.Fatalf("expected owner resolution without caller snapshot, got %+v", last)
	}

	req = httptest.NewRequest(http.MethodGet, "/businesses/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown business, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/businesses/not-a-uuid", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestSessionCookiesReplacesOnlySessionCookie(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	first := h.issue(t, owner, nil)
	second := h.issue(t, owner, nil)

	handler := SessionCookies(h.sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "locale", Value: "pt-PT", Path: "/"})
		session.RecordIssued(r.Context(), first)
		session.RecordIssued(r.Context(), second)
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var sessionValues []string
	localeKept := false
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case "appointly_session":
			sessionValues = append(sessionValues, c.Value)
		case "locale":
			localeKept = c.Value == "pt-PT"
		}
	}
	if !localeKept {
		t.Fatalf("unrelated cookie was dropped")
	}
	if len(sessionValues) != 1 || sessionValues[0] != second.Token {
		t.Fatalf("expected only the latest session cookie, got %v", sessionValues)
	}
	if got := rec.Header().Get(csrfHeader); got != second.CSRFToken {
		t.Fatalf("expected latest csrf token, got %q", got)
	}
}
