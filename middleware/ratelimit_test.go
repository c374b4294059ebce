package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(0.0001, 3)
	r := gin.New()
	r.GET("/", limiter.Limit(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// The burst is spent, then requests are rejected.
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, do("10.0.0.1"))
	}
	require.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))

	// Buckets are per client.
	require.Equal(t, http.StatusOK, do("10.0.0.2"))
}
