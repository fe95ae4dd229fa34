package trial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/appointly-backend/pkg/errors"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

// ErrAlreadyStarted marks an owner whose trial window is already set. Start
// treats it as success.
var ErrAlreadyStarted = errors.New("trial already started")

type subscriptionRepo interface {
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error)
	Ensure(ctx context.Context, ownerID uuid.UUID) error
	StartTrialIfUnset(ctx context.Context, ownerID uuid.UUID, startsAt, endsAt time.Time) (bool, error)
}

// Service grants the one-time trial window.
type Service interface {
	Pending(ctx context.Context, ownerID uuid.UUID) (bool, error)
	Start(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error)
}

// ServiceParams groups dependencies for the trial service.
type ServiceParams struct {
	Repo     subscriptionRepo
	Duration time.Duration
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     subscriptionRepo
	duration time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a trial service with the configured trial duration.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repo required")
	}
	if params.Duration <= 0 {
		return nil, fmt.Errorf("trial duration must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		duration: params.Duration,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Pending reports whether the owner has never had a trial window. A missing
// record counts as pending.
func (s *service) Pending(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	record, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return record == nil || !record.TrialStarted(), nil
}

// Start sets the trial window if the owner never had one and returns the
// resulting record. Repeated or concurrent calls return the same window.
func (s *service) Start(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}

	err := s.startOnce(ctx, ownerID)
	switch {
	case err == nil:
		s.info(ctx, ownerID, "trial.started")
	case errors.Is(err, ErrAlreadyStarted):
		s.info(ctx, ownerID, "trial.already_started")
	default:
		return nil, err
	}

	record, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if record == nil || !record.TrialStarted() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "trial window missing after start")
	}
	return record, nil
}

func (s *service) startOnce(ctx context.Context, ownerID uuid.UUID) error {
	if err := s.repo.Ensure(ctx, ownerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure subscription")
	}
	startsAt := s.now().UTC()
	won, err := s.repo.StartTrialIfUnset(ctx, ownerID, startsAt, startsAt.Add(s.duration))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start trial")
	}
	if !won {
		return ErrAlreadyStarted
	}
	return nil
}

func (s *service) info(ctx context.Context, ownerID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithField(ctx, "owner_id", ownerID.String()), msg)
}
