package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lk2023060901/stratumd/pkg/security"
)

// ClaimsKey Context 中存储 Claims 的 key
const ClaimsKey = "jwt_claims"

// Auth JWT 认证中间件，从 Authorization 头取令牌
func Auth(m *security.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing token"})
			return
		}

		claims, err := m.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
