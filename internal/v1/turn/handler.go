package turn

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/peergrid/signaling/internal/v1/auth"
	"github.com/peergrid/signaling/internal/v1/config"
	"github.com/peergrid/signaling/internal/v1/logging"
	"github.com/peergrid/signaling/internal/v1/metrics"
	"github.com/peergrid/signaling/internal/v1/ratelimit"
)

// IceServer is one entry of the returned iceServers list, in the shape
// RTCPeerConnection configuration expects.
type IceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type credentialsResponse struct {
	IceServers []IceServer      `json:"iceServers"`
	TTLSeconds int              `json:"ttlSeconds"`
	RateLimit  ratelimit.Result `json:"rateLimit"`
}

// Handler serves GET /turn-credentials: verify the join token, charge the
// caller's per-user rate budget, then mint ephemeral TURN credentials.
type Handler struct {
	codec   *auth.Codec
	minter  *Minter
	limiter *ratelimit.Limiter
	cfg     *config.Config
	now     func() time.Time
}

// NewHandler wires the credentials endpoint.
func NewHandler(codec *auth.Codec, minter *Minter, limiter *ratelimit.Limiter, cfg *config.Config) *Handler {
	return &Handler{codec: codec, minter: minter, limiter: limiter, cfg: cfg, now: time.Now}
}

// Handle implements GET /turn-credentials?token=…
func (h *Handler) Handle(c *gin.Context) {
	now := h.now()

	token := auth.ExtractToken(c.Request)
	claims, err := h.codec.Verify(token, "", now)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": "invalid or missing join token",
		}})
		return
	}

	result, err := h.limiter.Check(c.Request.Context(),
		"turn:"+claims.Subject, h.cfg.TurnRateLimitMax, h.cfg.TurnRateLimitWindowSec)
	if err != nil {
		logging.Error(c.Request.Context(), "TURN rate limiter unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{
			"code":    "RATE_LIMIT_ERROR",
			"message": "rate limiter unavailable",
		}})
		return
	}
	if !result.Allowed {
		metrics.RateLimitExceeded.WithLabelValues("turn_credentials", "user").Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"code":    "RATE_LIMITED",
				"message": "too many credential requests",
			},
			"rateLimit": result,
		})
		return
	}

	iceServers := []IceServer{}
	if len(h.cfg.StunURLs) > 0 {
		iceServers = append(iceServers, IceServer{URLs: h.cfg.StunURLs})
	}

	ttl := h.cfg.TurnTTLSeconds
	if len(h.cfg.TurnURLs) > 0 {
		if creds, ok := h.minter.Mint(claims.Subject, now); ok {
			iceServers = append(iceServers, IceServer{
				URLs:       h.cfg.TurnURLs,
				Username:   creds.Username,
				Credential: creds.Credential,
			})
			ttl = creds.TTLSeconds
			metrics.TurnCredentialsIssued.Inc()
		}
	}

	c.JSON(http.StatusOK, credentialsResponse{
		IceServers: iceServers,
		TTLSeconds: ttl,
		RateLimit:  result,
	})
}
