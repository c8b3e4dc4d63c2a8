package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/peergrid/signaling/internal/v1/config"
	"github.com/peergrid/signaling/internal/v1/logging"
)

// Dev issuer TTL bounds (seconds).
const (
	issuerMinTTL     = 30
	issuerMaxTTL     = 600
	issuerDefaultTTL = 300
)

// Issuer serves POST /token/issue, a development-only join-token mint. It is
// disabled unless ALLOW_DEV_TOKEN_ISSUER=true, and every request must carry a
// valid x-internal-secret or x-dev-issuer-secret header.
type Issuer struct {
	codec *Codec
	cfg   *config.Config
	now   func() time.Time
}

// NewIssuer wires the issuer to the join-token codec and config gates.
func NewIssuer(codec *Codec, cfg *config.Config) *Issuer {
	return &Issuer{codec: codec, cfg: cfg, now: time.Now}
}

type issueRequest struct {
	UserID     string `json:"userId" binding:"required"`
	RoomID     string `json:"roomId" binding:"required"`
	Name       string `json:"name"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type issueResponse struct {
	Token     string `json:"token"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Handle implements POST /token/issue.
func (i *Issuer) Handle(c *gin.Context) {
	if !i.cfg.AllowDevTokenIssuer {
		c.JSON(http.StatusForbidden, gin.H{"error": gin.H{
			"code":    "DEV_ISSUER_DISABLED",
			"message": "dev token issuer is not enabled",
		}})
		return
	}

	if !i.authorized(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": gin.H{
			"code":    "FORBIDDEN",
			"message": "missing or invalid issuer secret",
		}})
		return
	}

	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "BAD_REQUEST",
			"message": err.Error(),
		}})
		return
	}

	ttl := req.TTLSeconds
	if ttl == 0 {
		ttl = issuerDefaultTTL
	}
	if ttl < issuerMinTTL {
		ttl = issuerMinTTL
	}
	if ttl > issuerMaxTTL {
		ttl = issuerMaxTTL
	}

	now := i.now()
	expiresAt := now.Add(time.Duration(ttl) * time.Second)
	claims := &Claims{Room: req.RoomID, Name: req.Name}
	claims.Subject = req.UserID
	claims.IssuedAt = jwtNumericDate(now)
	claims.ExpiresAt = jwtNumericDate(expiresAt)

	token, err := i.codec.Sign(claims)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to sign dev join token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":    "INTERNAL",
			"message": "failed to sign token",
		}})
		return
	}

	c.JSON(http.StatusOK, issueResponse{
		Token:     token,
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		Name:      req.Name,
		ExpiresAt: expiresAt.UnixMilli(),
	})
}

// authorized accepts either the internal API secret or, when configured, the
// dedicated dev issuer secret. Comparisons are constant-time.
func (i *Issuer) authorized(c *gin.Context) bool {
	if secretEqual(c.GetHeader("x-internal-secret"), i.cfg.InternalAPISecret) {
		return true
	}
	if i.cfg.DevIssuerSecret != "" && secretEqual(c.GetHeader("x-dev-issuer-secret"), i.cfg.DevIssuerSecret) {
		return true
	}
	return false
}

func secretEqual(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
