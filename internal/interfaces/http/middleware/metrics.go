package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver records served requests.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// ActiveTracker counts requests in flight.
type ActiveTracker interface {
	TrackActive() (done func())
}

// Metrics observes every request under its route template. Unmatched paths
// are reported as "unmatched" to keep label cardinality bounded. Observers
// that also implement ActiveTracker see every request while it runs.
func Metrics(observer HTTPObserver) gin.HandlerFunc {
	tracker, _ := observer.(ActiveTracker)
	return func(c *gin.Context) {
		if tracker != nil {
			defer tracker.TrackActive()()
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
