package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const unmatchedRoute = "unmatched"

// GinMetrics records request counts and latency per route template.
func GinMetrics() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		path := ctx.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		RecordHTTPRequest(ctx.Request.Method, path, strconv.Itoa(ctx.Writer.Status()), time.Since(started).Seconds())
	}
}
