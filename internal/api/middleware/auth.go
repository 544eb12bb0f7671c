package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"formfiller/pkg/auth"
	"formfiller/pkg/response"
)

// AuthMiddleware requires a valid bearer token and puts the caller's
// user_id and username on the context. Browsers cannot set headers on a
// websocket handshake, so a token query parameter is accepted too.
func AuthMiddleware(tm *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			response.Abort(c, response.CodeUnauthorized, "missing token")
			return
		}

		claims, err := tm.ParseToken(token)
		if err != nil {
			response.Abort(c, response.CodeUnauthorized, "invalid token")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
