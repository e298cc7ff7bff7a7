package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamsync/internal/utils"
	"github.com/huangang/teamsync/pkg/response"
)

const ContextUserID = "user_id"

// AuthRequired rejects requests without a valid bearer token and puts the
// caller's user id on the context.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, response.NewUnauthorized("authorization header required"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Error(c, response.NewUnauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Error(c, response.NewUnauthorized("invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)

		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
