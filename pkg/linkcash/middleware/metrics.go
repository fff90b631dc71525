package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkcash/pkg/linkcash/metrics"
)

// UnmatchedRoute labels requests that hit no route, keeping label
// cardinality bounded.
const UnmatchedRoute = "unmatched"

// Metrics records request count, latency and in-flight requests per
// route template.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = UnmatchedRoute
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
