package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/pkg/config"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		Secret:       "unit-test-secret",
		Issuer:       "appointly-test",
		TTLMinutes:   60,
		CookieName:   "appointly_session",
		SecureCookie: true,
	}
}

func newTestManager(t *testing.T, now time.Time) *Manager {
	t.Helper()
	m, err := NewManager(testConfig(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return m
}

func TestManagerIssueAndVerify(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	m := newTestManager(t, now)
	owner := uuid.New()
	grant := uuid.New()
	snap := &access.Snapshot{
		OwnerID:   owner,
		Status:    enums.AccessStatusTrialing,
		HasAccess: true,
		DaysLeft:  7,
		CheckedAt: now,
	}

	issued, err := m.Issue(Identity{OwnerID: owner, DisplayName: "Ana", Username: "ana"}, snap, []uuid.UUID{grant})
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	require.NotEmpty(t, issued.CSRFToken)

	sess, err := m.Verify(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, owner, sess.OwnerID)
	assert.Equal(t, "Ana", sess.DisplayName)
	assert.Equal(t, "ana", sess.Username)
	assert.Equal(t, issued.Session.ID, sess.ID)
	assert.True(t, sess.Permits(grant))
	assert.False(t, sess.Permits(uuid.New()))
	require.NotNil(t, sess.Snapshot)
	assert.Equal(t, enums.AccessStatusTrialing, sess.Snapshot.Status)
	assert.True(t, sess.Snapshot.CheckedAt.Equal(now))
	assert.True(t, sess.ExpiresAt.Equal(now.Add(time.Hour)))

	require.NoError(t, m.VerifyCSRF(sess, issued.CSRFToken))
}

func TestManagerRotateIssuesNewCSRF(t *testing.T) {
	now := time.Now().UTC()
	m := newTestManager(t, now)
	id := Identity{OwnerID: uuid.New()}

	first, err := m.Issue(id, nil, nil)
	require.NoError(t, err)
	second, err := m.Rotate(ReasonTrialStart, id, nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.CSRFToken, second.CSRFToken)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)

	rotated, err := m.Verify(second.Token)
	require.NoError(t, err)
	assert.ErrorIs(t, m.VerifyCSRF(rotated, first.CSRFToken), ErrInvalidCSRF)
	assert.NoError(t, m.VerifyCSRF(rotated, second.CSRFToken))

	// the superseded token itself still verifies until expiry
	old, err := m.Verify(first.Token)
	require.NoError(t, err)
	assert.NoError(t, m.VerifyCSRF(old, first.CSRFToken))
}

func TestManagerVerifyRejects(t *testing.T) {
	now := time.Now().UTC()
	m := newTestManager(t, now)
	issued, err := m.Issue(Identity{OwnerID: uuid.New()}, nil, nil)
	require.NoError(t, err)

	_, err = m.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	otherCfg := testConfig()
	otherCfg.Secret = "another-secret"
	other, err := NewManager(otherCfg, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	_, err = other.Verify(issued.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := newTestManager(t, now.Add(2*time.Hour))
	_, err = later.Verify(issued.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManagerVerifyCSRFRejectsEmpty(t *testing.T) {
	m := newTestManager(t, time.Now())
	issued, err := m.Issue(Identity{OwnerID: uuid.New()}, nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, m.VerifyCSRF(issued.Session, ""), ErrInvalidCSRF)
	assert.ErrorIs(t, m.VerifyCSRF(nil, issued.CSRFToken), ErrInvalidCSRF)
	assert.ErrorIs(t, m.VerifyCSRF(issued.Session, issued.CSRFToken+"x"), ErrInvalidCSRF)
}

func TestNewManagerValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Secret = ""
	_, err := NewManager(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.TTLMinutes = 0
	_, err = NewManager(cfg)
	require.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	m := newTestManager(t, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: "appointly_session", Value: "cookie-token"})
	assert.Equal(t, "header-token", m.TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "appointly_session", Value: "cookie-token"})
	assert.Equal(t, "cookie-token", m.TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, m.TokenFromRequest(req))
}

func TestSetAndClearCookie(t *testing.T) {
	m := newTestManager(t, time.Now())
	issued, err := m.Issue(Identity{OwnerID: uuid.New()}, nil, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.SetCookie(rec, issued)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, issued.Token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	rec = httptest.NewRecorder()
	m.ClearCookie(rec)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestReplaceCookieKeepsOtherCookies(t *testing.T) {
	m := newTestManager(t, time.Now())
	owner := Identity{OwnerID: uuid.New()}
	stale, err := m.Issue(owner, nil, nil)
	require.NoError(t, err)
	fresh, err := m.Issue(owner, nil, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	http.SetCookie(rec, &http.Cookie{Name: "locale", Value: "en"})
	m.SetCookie(rec, stale)
	http.SetCookie(rec, &http.Cookie{Name: "appointly_session_hint", Value: "1"})
	m.ReplaceCookie(rec, fresh)

	byName := map[string][]string{}
	for _, c := range rec.Result().Cookies() {
		byName[c.Name] = append(byName[c.Name], c.Value)
	}
	assert.Equal(t, []string{fresh.Token}, byName["appointly_session"])
	assert.Equal(t, []string{"en"}, byName["locale"])
	assert.Equal(t, []string{"1"}, byName["appointly_session_hint"])
}

func TestIssuedHolderContext(t *testing.T) {
	ctx := context.Background()
	_, ok := IssuedFromContext(ctx)
	assert.False(t, ok)
	RecordIssued(ctx, &Issued{Token: "ignored"})

	var seen []string
	holder := NewIssuedHolder(func(i *Issued) { seen = append(seen, i.Token) })
	ctx = WithIssuedHolder(ctx, holder)
	_, ok = IssuedFromContext(ctx)
	assert.False(t, ok)

	RecordIssued(ctx, &Issued{Token: "t1"})
	RecordIssued(ctx, &Issued{Token: "t2"})
	got, ok := IssuedFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "t2", got.Token)
	assert.Equal(t, []string{"t1", "t2"}, seen)

	sessCtx := WithSession(context.Background(), &Session{ID: "abc"})
	s, ok := FromContext(sessCtx)
	require.True(t, ok)
	assert.Equal(t, "abc", s.ID)
	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

