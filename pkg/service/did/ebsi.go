package did

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
)

const ebsiDIDName = "ebsi"

// EBSIProvider holds the single DID the wallet uses towards EBSI issuers. It is set once during startup and is
// read-only afterwards.
type EBSIProvider struct {
	dids     *Service
	entities entity.Store
	did      atomic.Pointer[string]
}

func NewEBSIProvider(dids *Service, entities entity.Store) (*EBSIProvider, error) {
	if dids == nil || entities == nil {
		return nil, errors.New("did service and entity store are required")
	}
	return &EBSIProvider{dids: dids, entities: entities}, nil
}

// DID returns the EBSI DID, failing when Init has not completed
func (p *EBSIProvider) DID() (string, error) {
	did := p.did.Load()
	if did == nil {
		return "", framework.NewError(framework.Internal, "EBSI DID is not initialized")
	}
	return *did, nil
}

// Init loads the EBSI DID, creating it on first start. Transient failures are retried until maxElapsed.
func (p *EBSIProvider) Init(ctx context.Context, maxElapsed time.Duration) error {
	if p.did.Load() != nil {
		return nil
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = maxElapsed

	var did string
	err := backoff.Retry(func() error {
		var err error
		did, err = p.loadOrCreate(ctx)
		if err != nil {
			logrus.WithError(err).Warn("could not initialize EBSI DID, retrying..")
		}
		return err
	}, backoff.WithContext(expBackoff, ctx))
	if err != nil {
		return errors.Wrap(err, "initializing EBSI DID")
	}
	if p.did.CompareAndSwap(nil, &did) {
		logrus.Infof("EBSI DID: %s", did)
	}
	return nil
}

func (p *EBSIProvider) loadOrCreate(ctx context.Context) (string, error) {
	id := entity.NewWalletDIDEntity(ebsiDIDName, "").ID
	if did, err := p.read(ctx, id); err == nil || !framework.IsKind(err, framework.NotFound) {
		return did, err
	}

	did, err := p.dids.CreateEBSIDIDKey(ctx)
	if err != nil {
		return "", err
	}
	created, err := p.entities.EnsureEntity(ctx, entity.NewWalletDIDEntity(ebsiDIDName, did))
	if err != nil {
		return "", err
	}
	if created {
		return did, nil
	}

	// another instance won the race, drop our key and use theirs
	if err = p.dids.DeleteDID(ctx, did); err != nil {
		logrus.WithError(err).Warnf("could not delete unused did: %s", did)
	}
	return p.read(ctx, id)
}

func (p *EBSIProvider) read(ctx context.Context, id string) (string, error) {
	entityBytes, err := p.entities.GetEntityByID(ctx, id)
	if err != nil {
		return "", err
	}
	var stored entity.WalletDIDEntity
	if err = json.Unmarshal(entityBytes, &stored); err != nil {
		return "", framework.WrapError(err, framework.Deserialization, "stored EBSI DID is malformed")
	}
	return stored.DID.Value, nil
}
