package middleware

import (
	"strconv"
	"time"

	"github.com/SergeiKhy/shortlink/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics считает запросы по шаблону маршрута, чтобы коды ссылок не раздували кардинальность
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.HTTPInflightRequests.Inc()
		defer metrics.HTTPInflightRequests.Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
