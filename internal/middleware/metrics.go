package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arc-docs-api/internal/service"
)

// unmatchedRoute labels requests no route claimed, keeping raw paths (and
// the document ids inside them) out of the metric series.
const unmatchedRoute = "unmatched"

// Metrics records request count and latency per route template.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	if metrics == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(started))
	}
}
