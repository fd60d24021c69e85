package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
	"github.com/noah-isme/placement-rounds-api/pkg/response"
)

// RequireRoles lets the request through only when the caller holds one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not perform this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin is RequireRoles for the administrative roles.
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
}
