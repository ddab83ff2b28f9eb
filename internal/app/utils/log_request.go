// Package utils содержит вспомогательные функции HTTP-слоя.
package utils

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LogRequest пишет в debug-лог вызов эндпоинта вместе с request id,
// если его выставил middleware.RequestID.
func LogRequest(c *gin.Context, logger *zap.SugaredLogger) {
	logger.Debugw("Endpoint called",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"remote_addr", c.ClientIP(),
		"request_id", c.GetString("requestID"),
	)
}
