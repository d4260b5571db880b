package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ardanlabs/conf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/pkg/storage"
)

const (
	DefaultConfigPath = "config/config.toml"
	ConfigFileName    = "config.toml"
	ServiceName       = "wallet-service"
	ConfigExtension   = ".toml"

	DefaultServiceEndpoint       = "http://localhost:3000"
	DefaultEBSIRedirectURI       = "openid://"
	DefaultVaultPathPrefix       = "kv"
	DefaultVaultTimeout          = 5 * time.Second
	DefaultHTTPClientTimeout     = 30 * time.Second
	DefaultPresentationLifetime  = 5 * time.Minute
	DefaultEBSIInitMaxElapsed    = time.Minute
	DefaultDOMEMarketplaceRegexp = `^https?://[^/]*marketplace[^/]*`
)

type EnvironmentVariable string

const (
	ConfigPath EnvironmentVariable = "CONFIG_PATH"
)

func (e EnvironmentVariable) String() string {
	return string(e)
}

type Environment string

const (
	EnvironmentDev  Environment = "dev"
	EnvironmentTest Environment = "test"
	EnvironmentProd Environment = "prod"
)

type WalletServiceConfig struct {
	conf.Version
	Server   ServerConfig   `toml:"server"`
	Services ServicesConfig `toml:"services"`
}

// ServerConfig represents configurable properties for the HTTP server
type ServerConfig struct {
	Environment        Environment   `toml:"env" conf:"default:dev"`
	APIHost            string        `toml:"api_host" conf:"default:0.0.0.0:3000"`
	ServiceEndpoint    string        `toml:"service_endpoint" conf:"default:http://localhost:3000"`
	JagerHost          string        `toml:"jager_host" conf:"default:http://jaeger:14268/api/traces"`
	JagerEnabled       bool          `toml:"jager_enabled" conf:"default:false"`
	ReadTimeout        time.Duration `toml:"read_timeout" conf:"default:5s"`
	WriteTimeout       time.Duration `toml:"write_timeout" conf:"default:30s"`
	ShutdownTimeout    time.Duration `toml:"shutdown_timeout" conf:"default:5s"`
	LogLocation        string        `toml:"log_location" conf:"default:log"`
	LogLevel           string        `toml:"log_level" conf:"default:debug"`
	EnableAllowAllCORS bool          `toml:"enable_allow_all_cors" conf:"default:false"`
	AllowedCORSOrigins []string      `toml:"allowed_cors_origins"`
	HTTPClientTimeout  time.Duration `toml:"http_client_timeout"`

	Auth AuthConfig `toml:"auth"`
}

// AuthConfig gates the wallet API behind an RFC 7662 introspection endpoint. Left empty, bearer tokens are not
// introspected and only their subject is read.
type AuthConfig struct {
	IntrospectEndpoint string   `toml:"introspect_endpoint"`
	ClientID           string   `toml:"client_id"`
	ClientSecret       string   `toml:"client_secret" conf:"noprint"`
	TokenURL           string   `toml:"token_url"`
	Scopes             []string `toml:"scopes"`
}

func (a AuthConfig) IntrospectionEnabled() bool {
	return a.IntrospectEndpoint != ""
}

// ServicesConfig represents configurable properties for the components of the wallet service
type ServicesConfig struct {
	// a single storage provider backs the entity store and the local secret store
	StorageProvider string               `toml:"storage"`
	StorageOptions  StorageOptionsConfig `toml:"storage_option"`

	SecretConfig       SecretServiceConfig       `toml:"secret"`
	IssuanceConfig     IssuanceServiceConfig     `toml:"issuance"`
	PresentationConfig PresentationServiceConfig `toml:"presentation"`
}

type StorageOptionsConfig struct {
	BoltFilePath        string `toml:"bolt_file_path"`
	RedisAddress        string `toml:"redis_address"`
	RedisPassword       string `toml:"redis_password"`
	SQLConnectionString string `toml:"sql_connection_string"`
	SQLDriverName       string `toml:"sql_driver_name"`
}

// Options translates the configured values into options for the configured storage provider
func (s ServicesConfig) Options() []storage.Option {
	var opts []storage.Option
	o := s.StorageOptions
	if o.BoltFilePath != "" {
		opts = append(opts, storage.Option{ID: storage.BoltDBFilePathOption, Option: o.BoltFilePath})
	}
	if o.RedisAddress != "" {
		opts = append(opts, storage.Option{ID: storage.RedisAddressOption, Option: o.RedisAddress})
	}
	if o.RedisPassword != "" {
		opts = append(opts, storage.Option{ID: storage.PasswordOption, Option: o.RedisPassword})
	}
	if o.SQLConnectionString != "" {
		opts = append(opts, storage.Option{ID: storage.SQLConnectionString, Option: o.SQLConnectionString})
	}
	if o.SQLDriverName != "" {
		opts = append(opts, storage.Option{ID: storage.SQLDriverName, Option: o.SQLDriverName})
	}
	return opts
}

// SecretServiceConfig selects where private keys live
type SecretServiceConfig struct {
	// Provider is either "local" or "vault"
	Provider string `toml:"provider"`

	// Service key password. Used by a KDF whose key is used by a symmetric cypher for key encryption.
	// The password is salted before usage. Ignored when a master key URI is set.
	ServiceKeyPassword string `toml:"password"`

	// The URI for the master key. We use tink for envelope encryption as described in
	// https://github.com/google/tink/blob/9bc2667963e20eb42611b7581e570f0dddf65a2b/docs/KEY-MANAGEMENT.md#key-management-with-tink
	// When left empty, the service key is derived from ServiceKeyPassword.
	MasterKeyURI string `toml:"master_key_uri"`

	// Path for credentials required to access the MasterKeyURI
	KMSCredentialsPath string `toml:"kms_credentials_path"`

	Vault VaultConfig `toml:"vault"`
}

func (s SecretServiceConfig) GetMasterKeyURI() string {
	return s.MasterKeyURI
}

func (s SecretServiceConfig) GetKMSCredentialsPath() string {
	return s.KMSCredentialsPath
}

func (s SecretServiceConfig) EncryptionEnabled() bool {
	return s.MasterKeyURI != ""
}

type VaultConfig struct {
	Address    string        `toml:"address"`
	Token      string        `toml:"token"`
	PathPrefix string        `toml:"path_prefix"`
	Timeout    time.Duration `toml:"timeout"`
}

type IssuanceServiceConfig struct {
	// RedirectURI is sent to EBSI authorization servers as the client redirect_uri
	RedirectURI string `toml:"redirect_uri"`
	// EBSIEnabled creates the wallet's EBSI DID at startup
	EBSIEnabled bool `toml:"ebsi_enabled"`
	// EBSIInitMaxElapsed bounds the retries while creating the EBSI DID
	EBSIInitMaxElapsed time.Duration `toml:"ebsi_init_max_elapsed"`
}

type PresentationServiceConfig struct {
	// VerifierID is the audience of presentations built for verifiers following the common dialect
	VerifierID string `toml:"verifier_id"`
	// DOMEVerifierID is the audience of presentations built for DOME verifiers
	DOMEVerifierID string `toml:"dome_verifier_id"`
	// TurnstileID is the audience of presentations submitted to the turnstile
	TurnstileID string `toml:"turnstile_id"`
	// DOMEMarketplacePattern matches authorization request URIs that must be answered in the DOME dialect
	DOMEMarketplacePattern string `toml:"dome_marketplace_pattern"`
	// Lifetime is the validity window of built presentations
	Lifetime time.Duration `toml:"lifetime"`
}

// LoadConfig attempts to load a TOML config file from the given path, and coerce it into our object model.
// Before loading, defaults are applied on certain properties, which are overwritten if specified in the TOML file.
func LoadConfig(path string) (*WalletServiceConfig, error) {
	defaultConfig := false
	if path == "" {
		logrus.Info("no config path provided, loading default config...")
		defaultConfig = true
	} else if filepath.Ext(path) != ConfigExtension {
		return nil, fmt.Errorf("path<%s> did not match the expected TOML format", path)
	}

	var config WalletServiceConfig

	// parse and apply defaults
	if err := conf.Parse(os.Args[1:], ServiceName, &config); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "parsing config")
			}
			fmt.Println(usage)
			return nil, nil
		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "generating config version")
			}
			fmt.Println(version)
			return nil, nil
		}
		return nil, errors.Wrap(err, "parsing config")
	}

	if defaultConfig {
		config.Services = ServicesConfig{
			StorageProvider: storage.Bolt.String(),
			SecretConfig: SecretServiceConfig{
				Provider:           "local",
				ServiceKeyPassword: "default-password",
			},
			IssuanceConfig: IssuanceServiceConfig{
				EBSIEnabled: true,
			},
			PresentationConfig: PresentationServiceConfig{
				VerifierID:     "vc-verifier",
				DOMEVerifierID: "did:web:dome-marketplace.eu",
				TurnstileID:    "turnstile",
			},
		}
	} else if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, errors.Wrapf(err, "could not load config: %s", path)
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(config *WalletServiceConfig) {
	if config.Server.ServiceEndpoint == "" {
		config.Server.ServiceEndpoint = DefaultServiceEndpoint
	}
	if config.Server.HTTPClientTimeout == 0 {
		config.Server.HTTPClientTimeout = DefaultHTTPClientTimeout
	}
	services := &config.Services
	if services.StorageProvider == "" {
		services.StorageProvider = storage.Bolt.String()
	}
	if services.SecretConfig.Provider == "" {
		services.SecretConfig.Provider = "local"
	}
	if services.SecretConfig.Vault.PathPrefix == "" {
		services.SecretConfig.Vault.PathPrefix = DefaultVaultPathPrefix
	}
	if services.SecretConfig.Vault.Timeout == 0 {
		services.SecretConfig.Vault.Timeout = DefaultVaultTimeout
	}
	if services.IssuanceConfig.RedirectURI == "" {
		services.IssuanceConfig.RedirectURI = DefaultEBSIRedirectURI
	}
	if services.IssuanceConfig.EBSIInitMaxElapsed == 0 {
		services.IssuanceConfig.EBSIInitMaxElapsed = DefaultEBSIInitMaxElapsed
	}
	if services.PresentationConfig.DOMEMarketplacePattern == "" {
		services.PresentationConfig.DOMEMarketplacePattern = DefaultDOMEMarketplaceRegexp
	}
	if services.PresentationConfig.Lifetime == 0 {
		services.PresentationConfig.Lifetime = DefaultPresentationLifetime
	}
}
