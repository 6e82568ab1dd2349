package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/service"
)

// unmatchedRoute labels requests that hit no route, keeping path cardinality
// bounded by the route table.
const unmatchedRoute = "unmatched"

// Metrics observes every request under its route template. Probe and scrape
// endpoints are skipped.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	skip := map[string]struct{}{"/health": {}, "/ready": {}, "/metrics": {}}
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skip[route]; ok {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
