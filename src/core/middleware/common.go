package middleware

import (
	"net/http"
	"strings"
	"time"

	"qa-compass-server/src/core/auth"
	"qa-compass-server/src/core/utils"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	RequestIDKey = "request_id"
	ClaimsKey    = "jwt_claims"
	SubjectKey   = "subject"
)

// RequestIDHeader 请求 ID 响应头
const RequestIDHeader = "X-Request-Id"

// CORS 返回统一的跨域中间件，allowOrigins 为空或包含 * 时允许所有来源
func CORS(allowOrigins []string) gin.HandlerFunc {
	allowAll := len(allowOrigins) == 0
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin == "":
			c.Header("Access-Control-Allow-Origin", "*")
		case allowAll:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		default:
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
		}

		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestID 透传或生成请求 ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = utils.NewRequestID()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger 记录请求耗时与状态码
func RequestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		msg := "%s %s status=%d elapsed=%s request_id=%s"
		args := []any{c.Request.Method, c.Request.URL.Path, status, time.Since(start), c.GetString(RequestIDKey)}
		if status >= http.StatusInternalServerError {
			logger.Error(msg, args...)
			return
		}
		logger.Info(msg, args...)
	}
}

// BearerAuth 校验 Authorization: Bearer <jwt>
func BearerAuth(authToken *auth.AuthToken, logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.ErrorWithDetail(c, http.StatusUnauthorized, "无效的认证token或token已过期", nil)
			c.Abort()
			return
		}

		claims, err := authToken.VerifyToken(strings.TrimSpace(authHeader[7:]))
		if err != nil {
			if logger != nil {
				logger.Warn("BearerAuth 验证失败: %v", err)
			}
			utils.ErrorWithDetail(c, http.StatusUnauthorized, "token验证失败", err)
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}
