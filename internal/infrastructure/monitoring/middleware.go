package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Use the route template so ids in paths do not explode cardinality
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		metrics.RecordHTTPRequest(method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
