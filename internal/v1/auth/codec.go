// Package auth implements the join-token codec. Join tokens are compact
// HS256 JWTs binding (userId, roomId, optional name) with a short expiry,
// signed with the server's shared secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. The front door maps all of them to 401; they
// stay distinct for logging and tests.
var (
	ErrMalformed    = errors.New("token malformed")
	ErrBadSignature = errors.New("token signature invalid")
	ErrBadHeader    = errors.New("token header invalid")
	ErrBadPayload   = errors.New("token payload invalid")
	ErrExpired      = errors.New("token expired")
	ErrRoomMismatch = errors.New("token room mismatch")
)

// Claims are the join-token claims. Subject carries the user id; Room binds
// the token to a single room; Name optionally requests an alias.
type Claims struct {
	Room string `json:"room"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies join tokens with a single shared HMAC secret.
type Codec struct {
	secret []byte
}

// NewCodec creates a codec from the configured join-token secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Sign emits header.payload.signature with a fixed {alg:HS256, typ:JWT} header.
func (c *Codec) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign join token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature (constant-time, via the jwt library), the
// expiry against now, the presence of sub/room/exp, and the room binding when
// expectedRoom is non-empty. Returns the claims or one of the failure kinds.
func (c *Codec) Verify(tokenString, expectedRoom string, now time.Time) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected alg %q", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if claims.Subject == "" || claims.Room == "" {
		return nil, ErrBadPayload
	}
	if expectedRoom != "" && claims.Room != expectedRoom {
		return nil, ErrRoomMismatch
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// keyfunc rejection: alg other than HS256
		return ErrBadHeader
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ErrBadPayload
	default:
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
}
