package middleware

import (
	"net/http"
	"strings"

	"github.com/SergeiKhy/shortlink/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Ключи контекста gin с данными аутентифицированного пользователя
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
)

// RequireAuth пропускает только запросы с действующим Bearer-токеном.
// Нет токена: 401. Токен не прошёл проверку или истёк: 403.
func RequireAuth(tokens auth.TokenService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	security := logger.Named("security")

	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "Требуется авторизация: передайте токен в заголовке Authorization: Bearer",
			})
			return
		}

		claims, err := tokens.Verify(token)
		if err != nil {
			security.Warn("Invalid access token",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", GetRequestID(c)),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "invalid_token",
				"message": "Токен недействителен или истёк",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)

		c.Next()
	}
}

// UserIDFromContext id пользователя, установленный RequireAuth
func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// UserKey ключ для MiddlewareWithKey: лимит на пользователя, а не на IP
func UserKey(c *gin.Context) string {
	if username := c.GetString(ContextUsername); username != "" {
		return "user:" + username
	}
	return ""
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
