package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters-long"

func signTestToken(t *testing.T, secret string, mutate func(*Claims)) string {
	t.Helper()
	now := time.Now()
	claims := &Claims{Room: "room-1", Name: "alice"}
	claims.Subject = "user-1"
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Minute))
	if mutate != nil {
		mutate(claims)
	}

	token, err := NewCodec(secret).Sign(claims)
	require.NoError(t, err)
	return token
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(testSecret)
	token := signTestToken(t, testSecret, nil)

	claims, err := codec.Verify(token, "room-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "room-1", claims.Room)
	assert.Equal(t, "alice", claims.Name)
}

func TestCodec_RoomBindingOptional(t *testing.T) {
	codec := NewCodec(testSecret)
	token := signTestToken(t, testSecret, nil)

	// Empty expectedRoom skips the binding check (used by /turn-credentials).
	_, err := codec.Verify(token, "", time.Now())
	assert.NoError(t, err)

	_, err = codec.Verify(token, "another-room", time.Now())
	assert.ErrorIs(t, err, ErrRoomMismatch)
}

func TestCodec_FailureKinds(t *testing.T) {
	codec := NewCodec(testSecret)
	now := time.Now()

	t.Run("malformed", func(t *testing.T) {
		_, err := codec.Verify("garbage", "room-1", now)
		assert.ErrorIs(t, err, ErrMalformed)

		_, err = codec.Verify("", "room-1", now)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		claims := &Claims{Room: "room-1"}
		claims.Subject = "user-1"
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Minute))
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(unsigned, "room-1", now)
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("bad signature", func(t *testing.T) {
		token := signTestToken(t, "a-completely-different-32-char-secret!!", nil)
		_, err := codec.Verify(token, "room-1", now)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("expired", func(t *testing.T) {
		token := signTestToken(t, testSecret, func(c *Claims) {
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
		})
		_, err := codec.Verify(token, "room-1", now)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("missing exp", func(t *testing.T) {
		token := signTestToken(t, testSecret, func(c *Claims) {
			c.ExpiresAt = nil
		})
		_, err := codec.Verify(token, "room-1", now)
		assert.ErrorIs(t, err, ErrBadPayload)
	})

	t.Run("missing sub", func(t *testing.T) {
		token := signTestToken(t, testSecret, func(c *Claims) {
			c.Subject = ""
		})
		_, err := codec.Verify(token, "room-1", now)
		assert.ErrorIs(t, err, ErrBadPayload)
	})

	t.Run("missing room", func(t *testing.T) {
		token := signTestToken(t, testSecret, func(c *Claims) {
			c.Room = ""
		})
		_, err := codec.Verify(token, "", now)
		assert.ErrorIs(t, err, ErrBadPayload)
	})
}

func TestCodec_VerifyUsesSuppliedClock(t *testing.T) {
	codec := NewCodec(testSecret)
	token := signTestToken(t, testSecret, nil)

	// A clock far in the future sees the token as expired.
	_, err := codec.Verify(token, "room-1", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrExpired)
}
