package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey - ключ в gin.Context, под которым лежит идентификатор запроса.
	RequestIDKey = "requestID"
)

// RequestID берёт X-Request-ID из запроса или генерирует новый UUID
// и возвращает его клиенту в том же заголовке.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
