package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims are the JWT claims carried by a session token. Tokens
// are stateless: a valid signature and an unexpired timestamp are the
// only proof of authentication. The registered ID (jti) keys the logout
// denylist.
type SessionClaims struct {
	UserID  uuid.UUID `json:"user_id"`
	Email   string    `json:"email"`
	Role    Role      `json:"role"`
	IsAdmin bool      `json:"is_admin"`
	jwt.RegisteredClaims
}

// UserContext is the authenticated identity attached to a request
type UserContext struct {
	UserID  uuid.UUID
	Email   string
	Role    Role
	IsAdmin bool
	TokenID string
}
