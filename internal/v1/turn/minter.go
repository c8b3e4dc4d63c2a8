// Package turn mints time-limited ephemeral TURN credentials using the
// long-term credential mechanism: the username encodes the expiry and the
// password is an HMAC-SHA1 of the username under the relay's shared secret,
// so the relay can verify credentials without any shared state.
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// Credentials is one issued (username, credential) pair.
type Credentials struct {
	Username   string
	Credential string
	TTLSeconds int
}

// Minter derives ephemeral credentials from the TURN shared secret. The zero
// value (no secret) mints nothing, which disables the TURN block in responses.
type Minter struct {
	secret     string
	ttlSeconds int
}

// NewMinter creates a minter. ttlSeconds is assumed pre-clamped by config.
func NewMinter(secret string, ttlSeconds int) *Minter {
	return &Minter{secret: secret, ttlSeconds: ttlSeconds}
}

// Enabled reports whether a shared secret is configured.
func (m *Minter) Enabled() bool {
	return m != nil && m.secret != ""
}

// Mint derives credentials for userID valid until now + TTL.
func (m *Minter) Mint(userID string, now time.Time) (Credentials, bool) {
	if !m.Enabled() {
		return Credentials{}, false
	}

	expiresAt := now.Unix() + int64(m.ttlSeconds)
	username := fmt.Sprintf("%d:%s", expiresAt, userID)

	mac := hmac.New(sha1.New, []byte(m.secret))
	mac.Write([]byte(username))
	credential := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return Credentials{
		Username:   username,
		Credential: credential,
		TTLSeconds: m.ttlSeconds,
	}, true
}
