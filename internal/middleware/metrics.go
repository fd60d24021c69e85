package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/placement-rounds-api/internal/service"
)

const unmatchedRoute = "unmatched"

var unobserved = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// Metrics records latency per route template. Probe endpoints are skipped and
// unknown paths share one label so scanners cannot blow up series cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, skip := unobserved[route]; skip {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
