package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/appointly-backend/internal/access"
)

// SessionTokenPayload captures the data available when minting a session token.
type SessionTokenPayload struct {
	OwnerID              uuid.UUID
	DisplayName          string
	Username             string
	Subscription         *access.Snapshot
	PermittedBusinessIDs []uuid.UUID
	CSRFBinding          string
	JTI                  string
}

// SessionClaims represents the typed JWT held by clients.
type SessionClaims struct {
	OwnerID              uuid.UUID        `json:"owner_id"`
	DisplayName          string           `json:"name,omitempty"`
	Username             string           `json:"username,omitempty"`
	Subscription         *access.Snapshot `json:"subscription,omitempty"`
	PermittedBusinessIDs []uuid.UUID      `json:"permitted_business_ids"`
	CSRFBinding          string           `json:"csrf"`
	jwt.RegisteredClaims
}
