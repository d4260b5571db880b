// Package server contains the full set of handler functions and routes
// supported by the http api
package server

import (
	"context"
	"net/http"
	"os"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	"github.com/tbd54566975/wallet-service/pkg/server/middleware"
	"github.com/tbd54566975/wallet-service/pkg/server/router"
	"github.com/tbd54566975/wallet-service/pkg/service"
	"github.com/tbd54566975/wallet-service/pkg/service/common"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
)

const (
	HealthPrefix        = "/health"
	ReadinessPrefix     = "/readiness"
	V1Prefix            = "/v1"
	IssuancesPrefix     = "/issuances"
	CredentialsPrefix   = "/credentials"
	DeferredPath        = "/deferred"
	PresentationsPrefix = "/presentations"
	RequestsPath        = "/requests"
	ResponsesPath       = "/responses"
	TurnstilePath       = "/turnstile"
)

// WalletServer exposes all dependencies needed to run a http server and all its services
type WalletServer struct {
	*config.ServerConfig
	*service.WalletService
	*framework.Server
}

// NewWalletServer does two things: instantiates all services and registers their HTTP bindings
func NewWalletServer(ctx context.Context, shutdown chan os.Signal, cfg config.WalletServiceConfig) (*WalletServer, error) {
	httpClient := common.NewHTTPClient(cfg.Server.HTTPClientTimeout)
	wallet, err := service.InstantiateWalletService(ctx, cfg.Services, httpClient)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate wallet service")
	}
	server, err := newWalletServer(shutdown, cfg.Server, wallet)
	if err != nil {
		if closeErr := wallet.Close(); closeErr != nil {
			logrus.WithError(closeErr).Error("could not close wallet service")
		}
		return nil, err
	}
	return server, nil
}

func newWalletServer(shutdown chan os.Signal, cfg config.ServerConfig, wallet *service.WalletService) (*WalletServer, error) {
	// creates an HTTP server from the framework, and wrap it to extend it for the wallet
	engine := setUpEngine(cfg, shutdown)
	httpServer := framework.NewHTTPServer(cfg, engine, shutdown)
	config.SetAPIBase(cfg.ServiceEndpoint)

	// service-level routers
	httpServer.Handle(http.MethodGet, HealthPrefix, router.Health)
	httpServer.Handle(http.MethodGet, ReadinessPrefix, router.Readiness(wallet.GetServices()))

	// every v1 route acts on behalf of the bearer of the request
	var auth []gin.HandlerFunc
	if cfg.Auth.IntrospectionEnabled() {
		auth = append(auth, middleware.Introspect(cfg.Auth.IntrospectEndpoint, middleware.ClientCredentials(cfg.Auth)))
	}
	if err := IssuanceAPI(httpServer, wallet, auth...); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate Issuance API")
	}
	if err := CredentialAPI(httpServer, wallet, auth...); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate Credential API")
	}
	if err := PresentationAPI(httpServer, wallet, auth...); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate Presentation API")
	}

	return &WalletServer{
		Server:        httpServer,
		WalletService: wallet,
		ServerConfig:  &cfg,
	}, nil
}

// setUpEngine creates the gin engine and sets up the middleware based on config
func setUpEngine(cfg config.ServerConfig, shutdown chan os.Signal) *gin.Engine {
	switch cfg.Environment {
	case config.EnvironmentDev:
		gin.SetMode(gin.DebugMode)
	case config.EnvironmentTest:
		gin.SetMode(gin.TestMode)
	case config.EnvironmentProd:
		gin.SetMode(gin.ReleaseMode)
	}

	middlewares := gin.HandlersChain{
		gin.Recovery(),
		otelgin.Middleware(config.ServiceName),
		middleware.Errors(shutdown),
		middleware.Logger(logrus.StandardLogger()),
		middleware.Metrics(),
	}
	if cfg.EnableAllowAllCORS {
		middlewares = append(middlewares, middleware.CORS())
	} else if len(cfg.AllowedCORSOrigins) > 0 {
		middlewares = append(middlewares, middleware.CORS(cfg.AllowedCORSOrigins...))
	}

	// set up engine and middleware
	engine := gin.New()
	engine.Use(middlewares...)
	return engine
}

// IssuanceAPI registers all HTTP routes for redeeming credential offers
func IssuanceAPI(s *framework.Server, wallet *service.WalletService, mws ...gin.HandlerFunc) error {
	issuanceRouter, err := router.NewIssuanceRouter(wallet.Issuance)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating issuance router")
	}

	config.SetServicePath(svcframework.Issuance, IssuancesPrefix)
	s.Handle(http.MethodPost, V1Prefix+IssuancesPrefix, issuanceRouter.IssueFromOffer, mws...)
	s.Handle(http.MethodPost, V1Prefix+CredentialsPrefix+"/:id"+DeferredPath, issuanceRouter.CompleteDeferred, mws...)
	return nil
}

// CredentialAPI registers all HTTP routes for the user's credentials
func CredentialAPI(s *framework.Server, wallet *service.WalletService, mws ...gin.HandlerFunc) error {
	credRouter, err := router.NewCredentialRouter(wallet.Credential)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating credential router")
	}

	config.SetServicePath(svcframework.Credential, CredentialsPrefix)
	s.Handle(http.MethodGet, V1Prefix+CredentialsPrefix, credRouter.ListCredentials, mws...)
	s.Handle(http.MethodGet, V1Prefix+CredentialsPrefix+"/:id", credRouter.GetCredential, mws...)
	s.Handle(http.MethodDelete, V1Prefix+CredentialsPrefix+"/:id", credRouter.DeleteCredential, mws...)
	return nil
}

// PresentationAPI registers all HTTP routes for presenting credentials to verifiers
func PresentationAPI(s *framework.Server, wallet *service.WalletService, mws ...gin.HandlerFunc) error {
	presRouter, err := router.NewPresentationRouter(wallet.Presentation)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating presentation router")
	}

	config.SetServicePath(svcframework.Presentation, PresentationsPrefix)
	s.Handle(http.MethodPost, V1Prefix+PresentationsPrefix+RequestsPath, presRouter.ResolveAuthorizationRequest, mws...)
	s.Handle(http.MethodPost, V1Prefix+PresentationsPrefix+ResponsesPath, presRouter.SubmitAuthorizationResponse, mws...)
	s.Handle(http.MethodPost, V1Prefix+PresentationsPrefix+TurnstilePath, presRouter.BuildTurnstilePresentation, mws...)
	return nil
}
