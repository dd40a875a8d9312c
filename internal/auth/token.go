package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpirySkew is how much validity a token must have left to be used.
const ExpirySkew = 60 * time.Second

// TokenExpiry reads the exp claim without verifying the signature. ok is
// false when the token is malformed or carries no exp.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	e, err := claims.GetExpirationTime()
	if err != nil || e == nil {
		return time.Time{}, false
	}
	return e.Time, true
}

// Expired reports whether token expires within ExpirySkew of now.
// Malformed tokens count as expired.
func Expired(token string, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	if !ok {
		return true
	}
	return !exp.After(now.Add(ExpirySkew))
}
