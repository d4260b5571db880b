package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/pkg/server/framework"
)

// Logger logs request info before and after a handler runs, e.g.
//
//	started : GET /v1/credentials -> 192.168.1.0
//	completed : GET /v1/credentials -> 192.168.1.0 {traceId, status, latency}
func Logger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		r := c.Request

		// the trace id is only set once the route handler ran
		log.Debugf("started : %s %s -> %s", r.Method, r.URL.Path, c.ClientIP())

		c.Next()

		traceID := c.GetString(framework.TraceIDKey.String())
		log.WithFields(logrus.Fields{
			"traceId": traceID,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Infof("completed : %s %s -> %s", r.Method, r.URL.Path, c.ClientIP())
	}
}
