package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-board-api/internal/middleware"
	"github.com/noah-isme/campus-board-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// viewerRole resolves the effective role for visibility decisions. Anonymous
// and unknown roles read the board under the student policy.
func viewerRole(c *gin.Context) models.UserRole {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.RoleStudent
	}
	switch claims.Role {
	case models.RoleAdmin, models.RoleTeacher, models.RoleStudent:
		return claims.Role
	default:
		return models.RoleStudent
	}
}
