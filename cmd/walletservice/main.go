package main

import (
	"context"
	"expvar"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/pkg/server"
)

func main() {
	logrus.Info("wallet service starting")

	if err := run(); err != nil {
		logrus.Fatalf("main: error: %s", err.Error())
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		// help or version was printed
		return nil
	}

	if logFile := configureLogger(cfg.Server.LogLevel, cfg.Server.LogLocation); logFile != nil {
		defer func() {
			if closeErr := logFile.Close(); closeErr != nil {
				logrus.WithError(closeErr).Error("failed to close log file")
			}
		}()
	}

	var tp *sdktrace.TracerProvider
	if cfg.Server.JagerEnabled {
		if tp, err = newTracerProvider(cfg); err != nil {
			logrus.WithError(err).Error("could not instantiate tracer provider")
		}
	}

	expvar.NewString("build").Set(cfg.Version.SVN)
	printable, err := conf.String(cfg)
	if err != nil {
		return errors.Wrap(err, "serializing config")
	}
	logrus.Infof("main: env [%s] version %q config:\n%v", cfg.Server.Environment, cfg.Version.SVN, printable)
	defer logrus.Info("main: completed")

	// buffered so repeated interrupts are dropped
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	walletServer, err := server.NewWalletServer(context.Background(), shutdown, *cfg)
	if err != nil {
		return errors.Wrap(err, "starting http services")
	}
	defer func() {
		if closeErr := walletServer.WalletService.Close(); closeErr != nil {
			logrus.WithError(closeErr).Error("main: failed to close wallet service")
		}
	}()

	return serve(walletServer, shutdown, cfg.Server.ShutdownTimeout, tp)
}

// loadConfig reads a .env file when present and the toml config named by CONFIG_PATH
func loadConfig() (*config.WalletServiceConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not load .env file")
	}

	path := config.DefaultConfigPath
	if envPath, ok := os.LookupEnv(config.ConfigPath.String()); ok {
		logrus.Infof("loading config from env var path: %s", envPath)
		path = envPath
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not instantiate config")
	}
	return cfg, nil
}

// serve blocks until the server fails or a shutdown signal arrives, then drains in-flight requests
func serve(walletServer *server.WalletServer, shutdown chan os.Signal, timeout time.Duration, tp *sdktrace.TracerProvider) error {
	serverErrors := make(chan error, 1)
	go func() {
		logrus.Infof("main: listening on %s", walletServer.Server.Addr)
		serverErrors <- walletServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "server error")
	case sig := <-shutdown:
		logrus.Infof("main: shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			logrus.WithError(err).Error("main: failed to shutdown tracer")
		}
	}
	if err := walletServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("main: failed to stop server gracefully, forcing shutdown")
		if err = walletServer.Server.Close(); err != nil {
			logrus.WithError(err).Error("main: failed to close server")
		}
	}
	return nil
}

// newTracerProvider exports spans to the configured jaeger collector and installs the provider globally
func newTracerProvider(cfg *config.WalletServiceConfig) (*sdktrace.TracerProvider, error) {
	if cfg.Server.JagerHost == "" {
		return nil, errors.New("no jager host provided")
	}
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Server.JagerHost)))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version.SVN),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}

// configureLogger logs json to stdout, and also to a dated file under location when one is given. The returned
// file must be closed on shutdown.
func configureLogger(level, location string) *os.File {
	logLevel := logrus.InfoLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			logrus.WithError(err).Errorf("could not parse log level<%s>, setting to info", level)
		} else {
			logLevel = parsed
		}
	}
	logrus.SetLevel(logLevel)
	logrus.SetFormatter(&logrus.JSONFormatter{PrettyPrint: true})
	logrus.SetReportCaller(true)
	logrus.SetOutput(os.Stdout)
	if location == "" {
		return nil
	}

	now := time.Now()
	name := config.ServiceName + "-" + now.Format(time.DateOnly) + "-" + strconv.FormatInt(now.Unix(), 10) + ".log"
	file, err := os.OpenFile(filepath.Join(location, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logrus.WithError(err).Warn("failed to create log file, using stdout only")
		return nil
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, file))
	return file
}
