package httpmiddleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"rollcall/internal/metrics"
)

// RequestMetrics counts requests by matched route and status code.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
