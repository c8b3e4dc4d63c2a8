package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(context.Context) error { return s.err }

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/health/ready", h.Readiness)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func TestHealth(t *testing.T) {
	h := NewHandler(nil)
	fixed := time.UnixMilli(1_700_000_000_000)
	h.now = func() time.Time { return fixed }

	w := serve(h, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		OK  bool  `json:"ok"`
		Now int64 `json:"now"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, fixed.UnixMilli(), body.Now)
}

func TestReadiness(t *testing.T) {
	t.Run("no store configured", func(t *testing.T) {
		w := serve(NewHandler(nil), "/health/ready")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("store healthy", func(t *testing.T) {
		w := serve(NewHandler(&stubPinger{}), "/health/ready")
		require.Equal(t, http.StatusOK, w.Code)

		var body ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, "healthy", body.Checks["store"])
	})

	t.Run("store down", func(t *testing.T) {
		w := serve(NewHandler(&stubPinger{err: errors.New("connection refused")}), "/health/ready")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		var body ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "unavailable", body.Status)
		assert.Equal(t, "unhealthy", body.Checks["store"])
	})
}
