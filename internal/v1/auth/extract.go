package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtNumericDate keeps the jwt dependency out of handler-level code.
func jwtNumericDate(t time.Time) *jwt.NumericDate {
	return jwt.NewNumericDate(t)
}

// ExtractToken pulls the join token from a request: the Authorization bearer
// header wins, then the ?token= query parameter. Empty string when absent.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
