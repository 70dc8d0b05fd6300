// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/service"
	"biogenie-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ok 写入统一的成功响应。
func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// fail 按错误类别映射状态码并写入统一的错误响应。
func fail(c *gin.Context, err error) {
	status, message := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[Handler] %s %s 失败: %v", c.Request.Method, c.FullPath(), err)
	} else {
		log.Warnf("[Handler] %s %s 被拒绝: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": message, "data": nil})
}

func statusOf(err error) (int, string) {
	switch {
	case apperr.IsInvalidInput(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "无效的凭证"
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict, err.Error()
	case apperr.IsForbidden(err):
		return http.StatusForbidden, "无权访问该会话"
	case apperr.IsNotFound(err):
		return http.StatusNotFound, "会话不存在"
	case apperr.IsTransient(err):
		return http.StatusServiceUnavailable, "服务暂时不可用，请稍后重试"
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}
