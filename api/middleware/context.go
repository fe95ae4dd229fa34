package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/internal/access"
)

type contextKey string

const (
	ctxDecision      contextKey = "access_decision"
	ctxBusinessOwner contextKey = "business_owner_id"
)

// WithDecision stores the access decision made for this request.
func WithDecision(ctx context.Context, decision access.Decision) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxDecision, decision)
}

// DecisionFromContext returns the access decision, if access was enforced.
func DecisionFromContext(ctx context.Context) (access.Decision, bool) {
	if ctx == nil {
		return access.Decision{}, false
	}
	d, ok := ctx.Value(ctxDecision).(access.Decision)
	return d, ok
}

// WithBusinessOwner stores the owner of the business addressed by the route.
func WithBusinessOwner(ctx context.Context, ownerID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxBusinessOwner, ownerID)
}

// BusinessOwnerFromContext returns the owner resolved by RequireBusinessAccess.
func BusinessOwnerFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxBusinessOwner).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
