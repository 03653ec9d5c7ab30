package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	ClientID uuid.UUID
	Role     enums.MemberRole
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients. Tokens are
// minted by the external identity service; this backend only verifies them.
type AccessTokenClaims struct {
	UserID   uuid.UUID        `json:"user_id"`
	ClientID uuid.UUID        `json:"client_id"`
	Role     enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
