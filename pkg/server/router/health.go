package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/pkg/server/framework"
)

type GetHealthCheckResponse struct {
	// Status is always equal to `OK`.
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

const (
	HealthOK string = "OK"
)

// Health is a simple handler that always responds with a 200 OK
func Health(c *gin.Context) error {
	return framework.Respond(c, GetHealthCheckResponse{
		Status:  HealthOK,
		Service: config.Name(),
		Version: config.Version(),
	}, http.StatusOK)
}
