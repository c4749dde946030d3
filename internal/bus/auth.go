package bus

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the minimal claim set the bus trusts out of a join token
// (§4.2 "decoded claims determine userId and authenticated flag").
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID uint64 `json:"userId"`
}

// decodeToken validates signature and expiry and returns the carried
// userId. A missing/invalid token is not itself an error here — callers
// decide whether a token is required for the room being joined (§4.2
// "enforces token presence for PRIVATE rooms").
func decodeToken(signingKey, token string) (userID uint64, authenticated bool, err error) {
	if token == "" {
		return 0, false, nil
	}
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("bus: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(signingKey), nil
	})
	if err != nil || !parsed.Valid {
		return 0, false, fmt.Errorf("bus: invalid token: %w", err)
	}
	return claims.UserID, true, nil
}
