package businesses

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/internal/gate"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	"github.com/angelmondragon/appointly-backend/pkg/db"
	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

const (
	defaultInviteTTL   = 7 * 24 * time.Hour
	inviteCodeBytes    = 12
	inviteCodeAttempts = 3
)

type repository interface {
	Create(ctx context.Context, business *models.Business) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Business, error)
	Delete(ctx context.Context, id uuid.UUID) error
	HasPermission(ctx context.Context, businessID, userID uuid.UUID) (bool, error)
	HasGrantOnOwner(ctx context.Context, userID, ownerID uuid.UUID) (bool, error)
	CreateInvite(ctx context.Context, invite *models.BusinessInvite) error
	FindInviteByCode(ctx context.Context, code string) (*models.BusinessInvite, error)
	AcceptInvite(ctx context.Context, invite *models.BusinessInvite, userID uuid.UUID, at time.Time) error
}

type trialStarter interface {
	Pending(ctx context.Context, ownerID uuid.UUID) (bool, error)
	Start(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error)
}

type sessionRefresher interface {
	Refresh(ctx context.Context, sess *session.Session, reason session.Reason) (*gate.Outcome, error)
}

// Service manages businesses and the grants other users hold on them.
type Service interface {
	Create(ctx context.Context, sess *session.Session, req CreateBusinessRequest) (*CreateResult, error)
	Get(ctx context.Context, businessID uuid.UUID) (*BusinessDTO, error)
	AuthorizeMember(ctx context.Context, userID, businessID uuid.UUID) (uuid.UUID, error)
	AuthorizeOwner(ctx context.Context, userID, ownerID uuid.UUID) error
	CreateInvite(ctx context.Context, sess *session.Session, businessID uuid.UUID) (*InviteDTO, error)
	AcceptInvite(ctx context.Context, sess *session.Session, code string) (*AcceptResult, error)
}

// ServiceParams groups dependencies for the businesses service.
type ServiceParams struct {
	Repo      repository
	Trials    trialStarter
	Refresher sessionRefresher
	InviteTTL time.Duration
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      repository
	trials    trialStarter
	refresher sessionRefresher
	inviteTTL time.Duration
	logg      *logger.Logger
	now       func() time.Time
}

// NewService validates dependencies and builds the service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("business repository required")
	}
	if params.Trials == nil {
		return nil, fmt.Errorf("trial service required")
	}
	if params.Refresher == nil {
		return nil, fmt.Errorf("session refresher required")
	}
	ttl := params.InviteTTL
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		trials:    params.Trials,
		refresher: params.Refresher,
		inviteTTL: ttl,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Create stores the business and, while the owner's record has no trial
// window, starts the trial. A failed trial start removes the business again.
func (s *service) Create(ctx context.Context, sess *session.Session, req CreateBusinessRequest) (*CreateResult, error) {
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}

	pending, err := s.trials.Pending(ctx, sess.OwnerID)
	if err != nil {
		return nil, err
	}

	business := &models.Business{OwnerID: sess.OwnerID, Name: name, Timezone: timezone}
	if err := s.repo.Create(ctx, business); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create business")
	}
	result := &CreateResult{Business: businessFromModel(business)}
	if !pending {
		return result, nil
	}

	logCtx := s.logg.WithBusinessID(ctx, business.ID.String())
	if _, err := s.trials.Start(ctx, sess.OwnerID); err != nil {
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), business.ID); delErr != nil {
			s.logg.Error(logCtx, "business.rollback_failed", delErr)
		}
		return nil, err
	}
	result.TrialStarted = true

	// Both writes are committed. A failed rotation leaves the snapshot stale.
	outcome, err := s.refresher.Refresh(ctx, sess, session.ReasonTrialStart)
	if err != nil {
		s.logg.Error(logCtx, "business.session_refresh_failed", err)
	} else {
		result.Subscription = outcome.Decision.Snapshot
	}

	s.logg.Info(logCtx, "business.created_with_trial")
	return result, nil
}

func (s *service) Get(ctx context.Context, businessID uuid.UUID) (*BusinessDTO, error) {
	business, err := s.find(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return businessFromModel(business), nil
}

// AuthorizeMember returns the business owner when userID owns the business or
// holds a grant on it.
func (s *service) AuthorizeMember(ctx context.Context, userID, businessID uuid.UUID) (uuid.UUID, error) {
	business, err := s.find(ctx, businessID)
	if err != nil {
		return uuid.Nil, err
	}
	if business.OwnerID == userID {
		return business.OwnerID, nil
	}
	ok, err := s.repo.HasPermission(ctx, businessID, userID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check business permission")
	}
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "no access to this business")
	}
	return business.OwnerID, nil
}

// AuthorizeOwner allows userID to read ownerID's subscription: themselves, or
// a grant on any of the owner's businesses.
func (s *service) AuthorizeOwner(ctx context.Context, userID, ownerID uuid.UUID) error {
	if userID == ownerID {
		return nil
	}
	ok, err := s.repo.HasGrantOnOwner(ctx, userID, ownerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check owner grant")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "no access to this owner")
	}
	return nil
}

// CreateInvite issues a single-use code for a business the caller owns.
func (s *service) CreateInvite(ctx context.Context, sess *session.Session, businessID uuid.UUID) (*InviteDTO, error) {
	business, err := s.find(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if business.OwnerID != sess.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can invite")
	}

	now := s.now().UTC()
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := newInviteCode()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate invite code")
		}
		invite := &models.BusinessInvite{
			BusinessID:      business.ID,
			Code:            code,
			Status:          enums.InviteStatusPending,
			CreatedByUserID: sess.OwnerID,
			ExpiresAt:       now.Add(s.inviteTTL),
		}
		err = s.repo.CreateInvite(ctx, invite)
		if err == nil {
			return inviteFromModel(invite), nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invite")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate invite code")
}

// AcceptInvite grants the caller permission on the invite's business and
// rotates the caller's session with the new grant set.
func (s *service) AcceptInvite(ctx context.Context, sess *session.Session, code string) (*AcceptResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invite code is required")
	}
	invite, err := s.repo.FindInviteByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invite")
	}
	if invite == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invite not found")
	}
	business, err := s.find(ctx, invite.BusinessID)
	if err != nil {
		return nil, err
	}
	if business.OwnerID == sess.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "owners cannot accept their own invite")
	}

	if err := s.repo.AcceptInvite(ctx, invite, sess.OwnerID, s.now().UTC()); err != nil {
		if errors.Is(err, ErrInviteUnavailable) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "invite is no longer valid")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept invite")
	}

	if _, err := s.refresher.Refresh(ctx, sess, session.ReasonGrantAccepted); err != nil {
		return nil, err
	}
	return &AcceptResult{Business: businessFromModel(business)}, nil
}

func (s *service) find(ctx context.Context, businessID uuid.UUID) (*models.Business, error) {
	business, err := s.repo.FindByID(ctx, businessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load business")
	}
	if business == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "business not found")
	}
	return business, nil
}

func newInviteCode() (string, error) {
	buf := make([]byte, inviteCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
