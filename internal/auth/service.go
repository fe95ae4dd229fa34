package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/internal/users"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

const invalidInitDataMessage = "invalid telegram login"

// Service defines the behavior needed by the auth controller.
type Service interface {
	LoginTelegram(ctx context.Context, req TelegramLoginRequest) (*LoginResult, error)
}

type initDataVerifier interface {
	Verify(raw string) (users.TelegramProfile, error)
}

type userRepository interface {
	UpsertTelegram(ctx context.Context, profile users.TelegramProfile, loginAt time.Time) (*models.User, error)
}

type subscriptionRepository interface {
	Ensure(ctx context.Context, ownerID uuid.UUID) error
}

type accessResolver interface {
	Resolve(ctx context.Context, req access.Request) (access.Resolution, error)
}

type grantLoader interface {
	PermittedBusinessIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type sessionIssuer interface {
	Issue(id session.Identity, snap *access.Snapshot, grants []uuid.UUID) (*session.Issued, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Verifier      initDataVerifier
	Users         userRepository
	Subscriptions subscriptionRepository
	Resolver      accessResolver
	Policy        *access.Policy
	Grants        grantLoader
	Sessions      sessionIssuer
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	verifier      initDataVerifier
	users         userRepository
	subscriptions subscriptionRepository
	resolver      accessResolver
	policy        *access.Policy
	grants        grantLoader
	sessions      sessionIssuer
	logg          *logger.Logger
	now           func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Verifier == nil:
		return nil, fmt.Errorf("init data verifier is required")
	case params.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case params.Subscriptions == nil:
		return nil, fmt.Errorf("subscription repository is required")
	case params.Resolver == nil:
		return nil, fmt.Errorf("access resolver is required")
	case params.Grants == nil:
		return nil, fmt.Errorf("grant loader is required")
	case params.Sessions == nil:
		return nil, fmt.Errorf("session manager is required")
	}
	policy := params.Policy
	if policy == nil {
		policy = access.NewPolicy(params.Logger, nil)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		verifier:      params.Verifier,
		users:         params.Users,
		subscriptions: params.Subscriptions,
		resolver:      params.Resolver,
		policy:        policy,
		grants:        params.Grants,
		sessions:      params.Sessions,
		logg:          params.Logger,
		now:           now,
	}, nil
}

// LoginTelegram verifies init data, upserts the user and issues a session
// carrying a freshly computed subscription snapshot.
func (s *service) LoginTelegram(ctx context.Context, req TelegramLoginRequest) (*LoginResult, error) {
	profile, err := s.verifier.Verify(req.InitData)
	if err != nil {
		if errors.Is(err, ErrInitDataExpired) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "telegram login expired")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, invalidInitDataMessage)
	}

	now := s.now().UTC()
	user, err := s.users.UpsertTelegram(ctx, profile, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert user")
	}
	if err := s.subscriptions.Ensure(ctx, user.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure subscription")
	}

	res, resErr := s.resolver.Resolve(ctx, access.Request{OwnerID: user.ID})
	decision := s.policy.Decide(ctx, user.ID, res, resErr, nil)

	grants, err := s.grants.PermittedBusinessIDs(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load business grants")
	}

	issued, err := s.sessions.Issue(session.Identity{
		OwnerID:     user.ID,
		DisplayName: user.DisplayName(),
		Username:    stringValue(user.Username),
	}, decision.Snapshot, grants)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue session")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOwnerID(ctx, user.ID.String())
		logCtx = s.logg.WithField(logCtx, "degraded", decision.FailedOpen)
		s.logg.Info(logCtx, "auth.login")
	}

	return &LoginResult{
		User:         users.FromModel(user),
		Subscription: decision.Snapshot,
		Degraded:     decision.FailedOpen,
		Issued:       issued,
	}, nil
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
