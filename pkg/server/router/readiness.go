package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
)

// Readiness reports the status of every given service
func Readiness(services []svcframework.Service) framework.Handler {
	return readiness{
		getter: servicesToGet{services},
	}.ready
}

type readiness struct {
	getter serviceGetter
}

type GetReadinessResponse struct {
	Status          svcframework.Status                       `json:"status"`
	ServiceStatuses map[svcframework.Type]svcframework.Status `json:"serviceStatuses"`
	// ServicePaths lists where the services exposed over http are reachable
	ServicePaths map[svcframework.Type]string `json:"servicePaths,omitempty"`
}

// ready runs a number of application specific checks to see if all the
// relied upon services are healthy. Responds with a 503 if not ready.
func (r readiness) ready(c *gin.Context) error {
	services := r.getter.getServices()
	numServices := len(services)
	readyServices := 0
	statuses := make(map[svcframework.Type]svcframework.Status)
	paths := make(map[svcframework.Type]string)
	for _, s := range services {
		status := s.Status()
		statuses[s.Type()] = status
		if path := config.GetServicePath(s.Type()); path != "" {
			paths[s.Type()] = path
		}
		if status.IsReady() {
			readyServices++
		}
	}

	statusCode := http.StatusOK
	var status svcframework.Status
	if readyServices < numServices {
		statusCode = http.StatusServiceUnavailable
		status = svcframework.Status{
			Status:  svcframework.StatusNotReady,
			Message: fmt.Sprintf("out of [%d] services, [%d] are ready", numServices, readyServices),
		}
	} else {
		status = svcframework.Status{
			Status:  svcframework.StatusReady,
			Message: "all services ready",
		}
	}
	response := GetReadinessResponse{
		Status:          status,
		ServiceStatuses: statuses,
		ServicePaths:    paths,
	}

	return framework.Respond(c, response, statusCode)
}

// serviceGetter is a dependency of this readiness handler to know which services are available in the server
type serviceGetter interface {
	getServices() []svcframework.Service
}

type servicesToGet struct {
	services []svcframework.Service
}

func (s servicesToGet) getServices() []svcframework.Service {
	return s.services
}
