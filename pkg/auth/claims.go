package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID     uuid.UUID
	DojangCode string
	Role       enums.MemberRole
	JTI        string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID     uuid.UUID        `json:"user_id"`
	DojangCode string           `json:"dojang_code"`
	Role       enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// OAuthStateClaims ride through a provider authorization redirect.
type OAuthStateClaims struct {
	DojangCode string                `json:"dojang_code"`
	Provider   enums.PaymentProvider `json:"provider"`
	jwt.RegisteredClaims
}
