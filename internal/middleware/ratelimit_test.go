package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/pkg/ratelimit"
)

func TestRateLimitPerUserKeysByStudent(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(2, time.Minute)
	withClaims := func(userID string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: userID, Role: models.RoleStudent})
		}
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/checkin/:user", func(c *gin.Context) { withClaims(c.Param("user"))(c) }, RateLimitPerUser(limiter), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 4)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/checkin/stu-1", nil))
		codes = append(codes, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/checkin/stu-2", nil))
	codes = append(codes, w.Code)

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusOK}, codes)
}

func TestRateLimitPerUserWithoutLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", RateLimitPerUser(nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
