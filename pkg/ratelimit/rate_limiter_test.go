package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"refundsaga/internal/shared/config"
	"refundsaga/internal/shared/constants"
	"refundsaga/pkg/logger"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:         true,
		WindowDuration:  time.Minute,
		DefaultRequests: 60,
		HealthRequests:  300,
		OpsRequests:     120,
		WriteRequests:   2,
		WhitelistedIPs:  []string{"10.0.0.1"},
	}
}

func newTestLimiter(t *testing.T, cfg config.RateLimitConfig) (*RateLimiter, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, cfg)
	limiter.now = func() time.Time { return fixedNow }
	return limiter, mock
}

func expectWindow(mock redismock.ClientMock, limitType RateLimitType, ip string, limit int) *redismock.ExpectedCmd {
	key := constants.RATE_LIMIT_PREFIX + string(limitType) + ":" + ip
	return mock.ExpectEval(slidingWindowScript, []string{key},
		fixedNow.Add(-time.Minute).UnixMilli(), fixedNow.UnixMilli(), limit, 60)
}

func TestIsAllowedWithinLimit(t *testing.T) {
	limiter, mock := newTestLimiter(t, testConfig())
	expectWindow(mock, RateLimitTypeWrite, "1.2.3.4", 2).SetVal([]interface{}{int64(1), int64(1)})

	result, err := limiter.IsAllowed(context.Background(), "1.2.3.4", RateLimitTypeWrite)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Limit)
	assert.Equal(t, 1, result.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsAllowedOverLimit(t *testing.T) {
	limiter, mock := newTestLimiter(t, testConfig())
	expectWindow(mock, RateLimitTypeWrite, "1.2.3.4", 2).SetVal([]interface{}{int64(3), int64(0)})

	result, err := limiter.IsAllowed(context.Background(), "1.2.3.4", RateLimitTypeWrite)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)
}

func TestIsAllowedBypasses(t *testing.T) {
	limiter, mock := newTestLimiter(t, testConfig())

	result, err := limiter.IsAllowed(context.Background(), "10.0.0.1", RateLimitTypeWrite)
	require.NoError(t, err)
	assert.True(t, result.Allowed, "whitelisted")

	cfg := testConfig()
	cfg.Enabled = false
	disabled, _ := newTestLimiter(t, cfg)
	result, err = disabled.IsAllowed(context.Background(), "1.2.3.4", RateLimitTypeOps)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 120, result.Limit)

	assert.NoError(t, mock.ExpectationsWereMet(), "no redis calls")
}

func TestGetRateLimitType(t *testing.T) {
	assert.Equal(t, RateLimitTypeHealth, getRateLimitType(http.MethodGet, "/api/v1/health"))
	assert.Equal(t, RateLimitTypeOps, getRateLimitType(http.MethodGet, "/api/v1/ops/refunds/:id"))
	assert.Equal(t, RateLimitTypeWrite, getRateLimitType(http.MethodPost, "/api/v1/ops/bookings/:id/refund-retry"))
	assert.Equal(t, RateLimitTypeDefault, getRateLimitType(http.MethodGet, "/"))
}

func newTestRouter(limiter *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(limiter, logger.Discard()))
	r.POST("/api/v1/ops/refunds/reconcile", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	return r
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	limiter, mock := newTestLimiter(t, testConfig())
	expectWindow(mock, RateLimitTypeWrite, "1.2.3.4", 2).SetVal([]interface{}{int64(3), int64(0)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ops/refunds/reconcile", nil)
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.9")
	w := httptest.NewRecorder()
	newTestRouter(limiter).ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "errors.limit").Int())
}

func TestMiddlewareFailsOpen(t *testing.T) {
	limiter, mock := newTestLimiter(t, testConfig())
	expectWindow(mock, RateLimitTypeWrite, "1.2.3.4", 2).SetErr(errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ops/refunds/reconcile", nil)
	req.Header.Set("X-Real-IP", "1.2.3.4")
	w := httptest.NewRecorder()
	newTestRouter(limiter).ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}
