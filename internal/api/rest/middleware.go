package rest

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/auth"
)

const subjectKey = "subject_id"

// TokenVerifier 校验令牌并返回主体ID
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// JWTAuth 校验失败直接中止请求，后续处理器不会被调用
func JWTAuth(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			respondError(c, apperr.New(apperr.AuthInvalid, "缺少认证令牌"))
			return
		}

		subjectID, err := tokens.Verify(token)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(subjectKey, subjectID)
		c.Next()
	}
}

func subjectFrom(c *gin.Context) string {
	return c.GetString(subjectKey)
}

// RequestLogger 每个请求一条结构化日志
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"event", "http_request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if subject := subjectFrom(c); subject != "" {
			attrs = append(attrs, "subject_id", subject)
		}
		if err := c.Errors.Last(); err != nil {
			attrs = append(attrs, "error", err.Err)
		}

		if c.Writer.Status() >= 500 {
			logger.Error("请求失败", attrs...)
			return
		}
		logger.Info("请求完成", attrs...)
	}
}
