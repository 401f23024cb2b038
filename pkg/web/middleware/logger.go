package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lk2023060901/stratumd/pkg/logger"
)

// Logger 适配 pkg/logger 的 Gin 日志中间件
func Logger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []interface{}{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", c.ClientIP(),
			"latency", latency.String(),
		}

		if len(c.Errors) > 0 {
			for _, e := range c.Errors.Errors() {
				l.Error(e, fields...)
			}
		} else if status >= 400 {
			l.Warn("http request", fields...)
		} else {
			l.Info("http request", fields...)
		}
	}
}
