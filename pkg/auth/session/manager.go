package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/pkg/auth"
	"github.com/angelmondragon/appointly-backend/pkg/config"
	"github.com/angelmondragon/appointly-backend/pkg/metrics"
)

const (
	csrfTokenBytes = 32
	csrfKeyInfo    = "appointly/csrf-binding/v1"
)

var (
	// ErrInvalidToken covers any signature, structure or expiry failure.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrInvalidCSRF means the CSRF token was not minted with this session.
	ErrInvalidCSRF = errors.New("invalid csrf token")
)

// Reason labels why a session was issued.
type Reason string

const (
	ReasonLogin          Reason = "login"
	ReasonRefresh        Reason = "refresh"
	ReasonTrialStart     Reason = "trial_start"
	ReasonCheckoutReturn Reason = "checkout_return"
	ReasonGrantAccepted  Reason = "grant_accepted"
)

// Identity is the minimal profile carried in a session so requests avoid a user lookup.
type Identity struct {
	OwnerID     uuid.UUID
	DisplayName string
	Username    string
}

// Session is a verified session token.
type Session struct {
	Identity
	ID                   string
	Snapshot             *access.Snapshot
	PermittedBusinessIDs []uuid.UUID
	IssuedAt             time.Time
	ExpiresAt            time.Time
	csrfBinding          string
}

// Permits reports whether the session holds a delegated grant on businessID.
func (s *Session) Permits(businessID uuid.UUID) bool {
	for _, id := range s.PermittedBusinessIDs {
		if id == businessID {
			return true
		}
	}
	return false
}

// Issued is a freshly signed session paired with its CSRF token.
type Issued struct {
	Token     string
	CSRFToken string
	Session   *Session
}

// Manager signs, verifies and rotates session tokens.
type Manager struct {
	cfg     config.SessionConfig
	csrfKey []byte
	metrics *metrics.AccessMetrics
	now     func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics counts issued sessions by reason.
func WithMetrics(am *metrics.AccessMetrics) Option {
	return func(m *Manager) { m.metrics = am }
}

// NewManager validates the session config and derives the CSRF binding key.
func NewManager(cfg config.SessionConfig, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("session issuer is required")
	}
	if cfg.TTL() <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.Secret), nil, []byte(csrfKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive csrf key: %w", err)
	}
	m := &Manager{cfg: cfg, csrfKey: key, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a new session for a fresh login.
func (m *Manager) Issue(id Identity, snap *access.Snapshot, grants []uuid.UUID) (*Issued, error) {
	return m.mint(ReasonLogin, id, snap, grants)
}

// Rotate signs a replacement session mid-session. The prior token stays
// valid until its own expiry; only its CSRF token stops matching the new one.
func (m *Manager) Rotate(reason Reason, id Identity, snap *access.Snapshot, grants []uuid.UUID) (*Issued, error) {
	return m.mint(reason, id, snap, grants)
}

func (m *Manager) mint(reason Reason, id Identity, snap *access.Snapshot, grants []uuid.UUID) (*Issued, error) {
	csrfToken, err := newCSRFToken()
	if err != nil {
		return nil, err
	}
	jti := uuid.NewString()
	now := m.now().UTC()
	token, claims, err := auth.MintSessionToken(m.cfg, now, auth.SessionTokenPayload{
		OwnerID:              id.OwnerID,
		DisplayName:          id.DisplayName,
		Username:             id.Username,
		Subscription:         snap,
		PermittedBusinessIDs: grants,
		CSRFBinding:          m.bind(jti, csrfToken),
		JTI:                  jti,
	})
	if err != nil {
		return nil, err
	}
	m.metrics.IncRotation(string(reason))
	return &Issued{Token: token, CSRFToken: csrfToken, Session: sessionFromClaims(claims)}, nil
}

// Verify validates the token and returns its contents.
func (m *Manager) Verify(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims, err := auth.ParseSessionToken(m.cfg, token, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.CSRFBinding == "" {
		return nil, fmt.Errorf("%w: missing csrf binding", ErrInvalidToken)
	}
	return sessionFromClaims(claims), nil
}

// VerifyCSRF checks that csrfToken was minted together with s.
func (m *Manager) VerifyCSRF(s *Session, csrfToken string) error {
	if s == nil || strings.TrimSpace(csrfToken) == "" {
		return ErrInvalidCSRF
	}
	expected := m.bind(s.ID, strings.TrimSpace(csrfToken))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(s.csrfBinding)) != 1 {
		return ErrInvalidCSRF
	}
	return nil
}

func (m *Manager) bind(jti, csrfToken string) string {
	mac := hmac.New(sha256.New, m.csrfKey)
	mac.Write([]byte(jti))
	mac.Write([]byte{0})
	mac.Write([]byte(csrfToken))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func sessionFromClaims(claims *auth.SessionClaims) *Session {
	s := &Session{
		Identity: Identity{
			OwnerID:     claims.OwnerID,
			DisplayName: claims.DisplayName,
			Username:    claims.Username,
		},
		ID:                   claims.ID,
		Snapshot:             claims.Subscription,
		PermittedBusinessIDs: claims.PermittedBusinessIDs,
		csrfBinding:          claims.CSRFBinding,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s
}

func newCSRFToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
