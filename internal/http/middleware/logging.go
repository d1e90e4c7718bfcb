// README: Access log middleware.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/logger"
)

func Logging(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		line := log.With("status", status).With("latency_ms", time.Since(start).Milliseconds())
		if status >= 500 {
			line.Warnf("%s %s", c.Request.Method, c.Request.URL.Path)
			return
		}
		line.Infof("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}
