package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of token claims the harness reports on.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ParseClaims decodes token as a JWT without verifying its signature. Tokens
// that are not JWTs yield zero Claims and ok=false.
func ParseClaims(token string) (claims Claims, ok bool) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, false
	}
	claims.Subject = rc.Subject
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}
	return claims, true
}
