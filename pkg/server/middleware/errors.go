package middleware

import (
	"os"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/pkg/server/framework"
)

// Errors handles errors attached to the gin context further down the call stack. A shutdown error signals the
// server to stop, any other error is logged and answered through the framework unless a response was written.
func Errors(shutdown chan os.Signal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		tracer := trace.SpanFromContext(c.Request.Context()).TracerProvider().Tracer(config.ServiceName)
		_, span := tracer.Start(c.Request.Context(), "service.middleware.errors")
		defer span.End()

		errs := c.Errors.ByType(gin.ErrorTypeAny)
		if len(errs) == 0 {
			return
		}

		// check if there's a shutdown-worthy error
		for _, e := range errs {
			if framework.IsShutdown(e.Err) {
				c.Set(framework.ShutdownErrorKey.String(), e.Err)
				logrus.WithError(e.Err).Error("unsafe error, shutting down")
				shutdown <- syscall.SIGTERM
				return
			}
		}

		// otherwise just log the errors and return to the caller
		logrus.Errorf("%s : ERROR : %v", span.SpanContext().TraceID().String(), errs)
		if !c.Writer.Written() {
			_ = framework.RespondError(c, errs.Last().Err)
		}
	}
}
