package handlers

import (
	"net/http"
	"strings"

	"finsight-backend/service"

	"github.com/gin-gonic/gin"
)

// userIDContextKey is where RequireAuth stores the authenticated user ID
const userIDContextKey = "user_id"

// RequireAuth validates the Bearer token and stores the user ID on the
// request context
func RequireAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_TOKEN",
					"message": "Authorization header is required",
				},
			})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Authorization header must be a Bearer token",
				},
			})
			return
		}

		userID, err := authService.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Invalid or expired token",
				},
			})
			return
		}

		c.Set(userIDContextKey, userID)
		c.Next()
	}
}
