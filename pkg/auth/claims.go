package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	Role          enums.UserRole
	EmailVerified bool
	JTI           string
}

// AccessTokenClaims represents the typed JWT issued by the identity service.
type AccessTokenClaims struct {
	UserID        uuid.UUID      `json:"user_id"`
	Role          enums.UserRole `json:"role"`
	EmailVerified bool           `json:"email_verified"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller a request acts on behalf of.
type Actor struct {
	UserID        uuid.UUID
	Role          enums.UserRole
	EmailVerified bool
}

// IsAdmin reports whether the actor may review and transition orders.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// Actor converts verified claims into the request actor.
func (c *AccessTokenClaims) Actor() Actor {
	return Actor{
		UserID:        c.UserID,
		Role:          c.Role,
		EmailVerified: c.EmailVerified,
	}
}
