// ABOUTME: Client-side inspection of the bearer credential's JWT claims.
// ABOUTME: Verification happens server-side; this only reads expiry and subject.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// TokenInfo is what the client can learn from its own credential without the
// signing secret.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Inspect decodes the token payload without verifying the signature; the
// client does not hold the secret, and the server rejects bad tokens anyway.
// Returns ErrExpiredToken when the exp claim has passed, so the CLI can warn
// before dialing instead of failing the handshake.
func Inspect(tokenString string) (*TokenInfo, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	info := &TokenInfo{}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
		if time.Now().After(exp.Time) {
			return info, ErrExpiredToken
		}
	}

	return info, nil
}
