package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/internal/service"
	"github.com/noah-isme/placement-rounds-api/pkg/logger"
)

func newGuardedRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actor": c.GetString(logger.ActorKey)})
	})
	r.GET("/guarded", handlers...)
	return r
}

func TestJWTAcceptsValidToken(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "test-secret"})
	token, err := tokens.Issue("stu-1", models.RoleStudent, "stu@x.edu", time.Minute)
	require.NoError(t, err)

	r := newGuardedRouter(JWT(tokens))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"actor":"stu-1"`)
}

func TestJWTRejectsMissingOrMalformedHeader(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "test-secret"})
	r := newGuardedRouter(JWT(tokens))

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestRequireRoles(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "test-secret"})
	r := newGuardedRouter(JWT(tokens), RequireAdmin())

	studentToken, err := tokens.Issue("stu-1", models.RoleStudent, "", time.Minute)
	require.NoError(t, err)
	adminToken, err := tokens.Issue("adm-1", models.RoleAdmin, "", time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
