package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/placement-rounds-api/internal/middleware"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// actorFromContext describes the caller for the audit trail. Unauthenticated requests yield an empty actor.
func actorFromContext(c *gin.Context) service.Actor {
	actor := service.Actor{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if claims := claimsFromContext(c); claims != nil {
		actor.UserID = claims.UserID
		actor.Role = claims.Role
	}
	return actor
}

func isAdmin(c *gin.Context) bool {
	claims := claimsFromContext(c)
	return claims != nil && claims.Role.IsAdmin()
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
