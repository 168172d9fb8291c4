package session

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is what the client can learn from a credential without
// contacting the service. The signature is not checked; the service does
// that on every request.
type tokenClaims struct {
	Subject string
	Email   string
	UserID  int64
	Expires time.Time
}

func parseClaims(token string) (tokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return tokenClaims{}, fmt.Errorf("failed to parse token claims: %w", err)
	}

	var c tokenClaims
	c.Subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.Expires = exp.Time
	}
	if email, ok := claims["email"].(string); ok {
		c.Email = email
	}
	c.UserID = numericClaim(claims, "userId", "uid", "id", "sub")
	return c, nil
}

func (c tokenClaims) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

// numericClaim returns the first positive integer found under keys.
func numericClaim(claims jwt.MapClaims, keys ...string) int64 {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case float64:
			if v > 0 && v == math.Trunc(v) && v <= math.MaxInt64 {
				return int64(v)
			}
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}
