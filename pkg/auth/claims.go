package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	Role    enums.ActorRole
	StoreID *uuid.UUID
	JTI     string
}

// AccessTokenClaims represents the typed JWT presented by clients, store
// operators and couriers. StoreID is only set for store operators.
type AccessTokenClaims struct {
	UserID  uuid.UUID       `json:"user_id"`
	Role    enums.ActorRole `json:"role"`
	StoreID *uuid.UUID      `json:"store_id,omitempty"`
	jwt.RegisteredClaims
}
