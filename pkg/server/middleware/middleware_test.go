package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
)

func newEngine(mws ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(mws...)
	return engine
}

func TestErrors(t *testing.T) {
	t.Run("attached errors are answered", func(tt *testing.T) {
		engine := newEngine(Errors(make(chan os.Signal, 1)))
		engine.GET("/fails", func(c *gin.Context) {
			_ = c.Error(svcframework.NewError(svcframework.Conflict, "already stored"))
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fails", nil))
		assert.Equal(tt, http.StatusConflict, w.Code)
		assert.Contains(tt, w.Body.String(), "already stored")
	})

	t.Run("shutdown errors signal shutdown", func(tt *testing.T) {
		shutdown := make(chan os.Signal, 1)
		engine := newEngine(Errors(shutdown))
		engine.GET("/fails", func(c *gin.Context) {
			_ = c.Error(errors.Wrap(framework.NewShutdownError("integrity"), "handling"))
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fails", nil))
		assert.Len(tt, shutdown, 1)
	})
}

func TestMetrics(t *testing.T) {
	engine := newEngine(Metrics(), Logger(logrus.StandardLogger()))
	engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/broken", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	requests, errs := requestCount.Value(), errorCount.Value()
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))

	assert.Equal(t, requests+2, requestCount.Value())
	assert.Equal(t, errs+1, errorCount.Value())
	assert.NotNil(t, statusCount.Get("502"))
}

func TestCORS(t *testing.T) {
	t.Run("allow all", func(tt *testing.T) {
		engine := newEngine(CORS())
		engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("Origin", "https://wallet.example")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(tt, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allowed origins only", func(tt *testing.T) {
		engine := newEngine(CORS("https://wallet.example"))
		engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("Origin", "https://wallet.example")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(tt, "https://wallet.example", w.Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("Origin", "https://evil.example")
		w = httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(tt, http.StatusForbidden, w.Code)
	})
}
