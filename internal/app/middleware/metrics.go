package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver получает итог каждого запроса (см. metrics.Metrics).
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

func Metrics(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		observer.ObserveRequest(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
