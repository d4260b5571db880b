package middleware

import (
	"expvar"
	"runtime"
	"strconv"

	"github.com/gin-gonic/gin"
)

// counters published on /debug/vars
var (
	requestCount   = expvar.NewInt("requests")
	errorCount     = expvar.NewInt("errors")
	goroutineCount = expvar.NewInt("goroutines")
	statusCount    = expvar.NewMap("responses")
)

const goroutineSampleRate = 100

// Metrics counts requests by response status. Failed requests are those with gin errors or a server side status.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		requestCount.Add(1)
		if requestCount.Value()%goroutineSampleRate == 0 {
			goroutineCount.Set(int64(runtime.NumGoroutine()))
		}

		status := c.Writer.Status()
		statusCount.Add(strconv.Itoa(status), 1)
		if len(c.Errors) > 0 || status >= 500 {
			errorCount.Add(1)
		}
	}
}
