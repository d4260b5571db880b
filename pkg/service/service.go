package service

import (
	"context"
	"net/http"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/pkg/service/credential"
	"github.com/tbd54566975/wallet-service/pkg/service/did"
	"github.com/tbd54566975/wallet-service/pkg/service/ebsi"
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/issuance"
	"github.com/tbd54566975/wallet-service/pkg/service/oidc4vci"
	"github.com/tbd54566975/wallet-service/pkg/service/presentation"
	"github.com/tbd54566975/wallet-service/pkg/service/secret"
	"github.com/tbd54566975/wallet-service/pkg/service/signing"
	"github.com/tbd54566975/wallet-service/pkg/storage"
)

// WalletService represents all services and their dependencies independent of transport
type WalletService struct {
	Storage      storage.ServiceStorage
	Secret       secret.Store
	Entity       *entity.StorageStore
	DID          *did.Service
	Signing      *signing.Service
	Credential   *credential.Service
	Issuance     *issuance.Service
	Presentation *presentation.Service

	// set when EBSI issuance is enabled
	EBSIDID *did.EBSIProvider
}

// InstantiateWalletService creates all services and their dependencies. All outbound calls go through the given
// client. The EBSI DID is initialized before returning when EBSI issuance is enabled.
func InstantiateWalletService(ctx context.Context, cfg config.ServicesConfig, httpClient *http.Client) (*WalletService, error) {
	storageType, err := storage.ParseType(cfg.StorageProvider)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate wallet service, invalid config")
	}
	if _, err = secret.ParseProvider(cfg.SecretConfig.Provider); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate wallet service, invalid config")
	}

	db, err := storage.NewStorage(storageType, cfg.Options()...)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not instantiate storage provider: %s", storageType)
	}
	svc, err := instantiateServices(ctx, cfg, db, httpClient)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logrus.WithError(closeErr).Error("could not close storage")
		}
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the wallet service")
	}
	return svc, nil
}

func instantiateServices(ctx context.Context, cfg config.ServicesConfig, db storage.ServiceStorage, httpClient *http.Client) (*WalletService, error) {
	secretStore, err := secret.NewSecretStore(ctx, cfg.SecretConfig, db)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the secret store")
	}

	entityStore, err := entity.NewStorageStore(db)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the entity store")
	}

	didService, err := did.NewDIDService(secretStore)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the DID service")
	}

	signingService, err := signing.NewSigningService(secretStore)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the signing service")
	}

	credentialService, err := credential.NewCredentialService(entityStore)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the credential service")
	}

	c := clock.New()
	builder := presentation.NewBuilder(signingService, c, cfg.PresentationConfig.Lifetime)
	presentationService, err := presentation.NewPresentationService(cfg.PresentationConfig, httpClient, credentialService, builder)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the presentation service")
	}

	client, err := oidc4vci.NewClient(httpClient)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the issuer client")
	}
	issuanceService, err := issuance.NewIssuanceService(oidc4vci.NewResolver(client), client, oidc4vci.NewProofBuilder(signingService, c), didService, entityStore, c)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the issuance service")
	}

	walletService := WalletService{
		Storage:      db,
		Secret:       secretStore,
		Entity:       entityStore,
		DID:          didService,
		Signing:      signingService,
		Credential:   credentialService,
		Issuance:     issuanceService,
		Presentation: presentationService,
	}

	if cfg.IssuanceConfig.EBSIEnabled {
		ebsiService, err := ebsi.NewEBSIService(cfg.IssuanceConfig, httpClient, signingService, builder, credentialService, c)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the EBSI service")
		}
		ebsiDID, err := did.NewEBSIProvider(didService, entityStore)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the EBSI DID provider")
		}
		if err = ebsiDID.Init(ctx, cfg.IssuanceConfig.EBSIInitMaxElapsed); err != nil {
			return nil, sdkutil.LoggingErrorMsg(err, "could not initialize the EBSI DID")
		}
		issuanceService.WithEBSI(ebsiDID, ebsiService)
		walletService.EBSIDID = ebsiDID
	}
	return &walletService, nil
}

// GetServices returns all services
func (s *WalletService) GetServices() []framework.Service {
	return []framework.Service{
		s.Secret,
		s.Entity,
		s.DID,
		s.Signing,
		s.Credential,
		s.Issuance,
		s.Presentation,
	}
}

// Close releases the storage engine
func (s *WalletService) Close() error {
	return s.Storage.Close()
}
