// Package framework is a minimal web framework on top of gin.
package framework

import (
	"net/http"
	"os"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/wallet-service/config"
)

type contextKey string

const (
	TraceIDKey       contextKey = "traceID"
	ShutdownErrorKey contextKey = "shutdownError"
)

func (c contextKey) String() string {
	return string(c)
}

// Server wraps the http server with the gin engine its routes are registered on.
type Server struct {
	*http.Server
	router   *gin.Engine
	tracer   trace.Tracer
	shutdown chan os.Signal
}

// Handler handles a request. A returned error has already been rendered to the caller and is only logged, unless it
// is a shutdown error.
type Handler func(c *gin.Context) error

// NewHTTPServer creates a Server listening on the configured host. Routes are traced when jaeger is enabled.
func NewHTTPServer(cfg config.ServerConfig, engine *gin.Engine, shutdown chan os.Signal) *Server {
	server := Server{
		Server: &http.Server{
			Addr:              cfg.APIHost,
			Handler:           engine,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		router:   engine,
		shutdown: shutdown,
	}
	if cfg.JagerEnabled {
		server.tracer = otel.Tracer(config.ServiceName)
	}
	return &server
}

// Handle registers handler for method and path, behind the given route middleware.
func (s *Server) Handle(method string, path string, handler Handler, middleware ...gin.HandlerFunc) {
	chain := make([]gin.HandlerFunc, 0, len(middleware)+1)
	chain = append(chain, middleware...)
	chain = append(chain, s.adapt(method, path, handler))
	s.router.Handle(method, path, chain...)
}

func (s *Server) adapt(method, path string, handler Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tracer != nil {
			span := s.startSpan(c, method, path)
			defer span.End()
		}

		err := handler(c)
		if err == nil {
			return
		}
		logrus.WithError(err).Errorf("request failed: %s %s", method, path)
		if IsShutdown(err) {
			logrus.WithError(err).Error("unsafe error, shutting down")
			s.SignalShutdown()
		}
	}
}

// startSpan replaces the request context with one carrying a span for the route
func (s *Server) startSpan(c *gin.Context, method, path string) trace.Span {
	r := c.Request
	ctx, span := s.tracer.Start(r.Context(), path, trace.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("host", r.Host),
		attribute.String("user-agent", r.UserAgent()),
		attribute.String("proto", r.Proto),
	))
	c.Request = r.WithContext(ctx)
	c.Set(TraceIDKey.String(), span.SpanContext().TraceID().String())
	return span
}

// SignalShutdown gracefully shuts the server down when an integrity issue is identified.
func (s *Server) SignalShutdown() {
	s.shutdown <- syscall.SIGTERM
}
