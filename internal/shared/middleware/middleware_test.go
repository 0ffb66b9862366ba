package middleware

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"refundsaga/internal/shared/apperror"
	"refundsaga/internal/shared/config"
	"refundsaga/internal/shared/utils/response"
	"refundsaga/pkg/logger"
)

const testSecret = "test-secret"

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret}}

	r := gin.New()
	ops := r.Group("/ops", JWTAuth(cfg, logger.Discard()), RequireRoles(RoleAdmin, RoleOperator))
	ops.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(ContextUserID), "role": c.GetString(ContextUserRole)})
	})
	return r
}

func call(t *testing.T, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ops/whoami", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)
	return w
}

func TestOperatorTokenAccepted(t *testing.T) {
	token, err := IssueToken(testSecret, "op-1", RoleOperator, time.Hour)
	require.NoError(t, err)

	w := call(t, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "op-1", gjson.Get(w.Body.String(), "user_id").String())
	assert.Equal(t, RoleOperator, gjson.Get(w.Body.String(), "role").String())
}

func TestAuthRejections(t *testing.T) {
	customer, _ := IssueToken(testSecret, "u-1", "CUSTOMER", time.Hour)
	expired, _ := IssueToken(testSecret, "op-1", RoleAdmin, -time.Minute)
	wrongKey, _ := IssueToken("other-secret", "op-1", RoleAdmin, time.Hour)
	refresh, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "op-1", "role": RoleAdmin, "type": "refresh",
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Token abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized},
		{"customer role", "Bearer " + customer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(t, tt.header)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "error", gjson.Get(w.Body.String(), "status").String())
		})
	}
}

func TestRequestLoggerLogsServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer

	r := gin.New()
	r.Use(RequestLogger(logger.NewJSON(&buf, slog.LevelInfo)))
	r.GET("/boom", func(c *gin.Context) {
		response.RespondError(c, fmt.Errorf("%w: connection reset", apperror.ErrPersistence))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), `"msg":"HTTP Error"`)
	assert.Contains(t, buf.String(), "connection reset")
}
