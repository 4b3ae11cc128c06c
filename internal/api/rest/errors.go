package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/onevote/internal/apperr"
)

// statusFor 错误分类到HTTP状态码
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidInput, apperr.AlreadyVoted:
		return http.StatusBadRequest
	case apperr.AuthInvalid, apperr.AuthExpired:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError 只返回可公开的消息，内部错误写入上下文供请求日志记录
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(kind), gin.H{
		"error": apperr.PublicMessage(err),
		"code":  kind.String(),
	})
}
