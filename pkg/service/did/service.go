package did

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/TBD54566975/ssi-sdk/crypto"
	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/secret"
)

// Service creates the wallet's DIDs. The private key of every DID is kept in the secret store under the DID itself.
type Service struct {
	secrets secret.Store
}

func NewDIDService(secrets secret.Store) (*Service, error) {
	if secrets == nil {
		return nil, errors.New("secret store cannot be empty")
	}
	return &Service{secrets: secrets}, nil
}

func (s *Service) Type() framework.Type {
	return framework.DID
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.secrets == nil {
		ae.AppendString("no secret store configured")
	} else if !s.secrets.Status().IsReady() {
		ae.AppendString(s.secrets.Status().Message)
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("did service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

// CreateDIDKey creates a fresh P-256 did:key and stores its private key
func (s *Service) CreateDIDKey(ctx context.Context) (string, error) {
	return s.create(ctx, EncodeDIDKey)
}

// CreateEBSIDIDKey creates a fresh did:key in the EBSI natural person encoding and stores its private key
func (s *Service) CreateEBSIDIDKey(ctx context.Context) (string, error) {
	return s.create(ctx, EncodeEBSIDIDKey)
}

func (s *Service) create(ctx context.Context, encoder func(*ecdsa.PublicKey) (string, error)) (string, error) {
	privKey, err := generateP256Key()
	if err != nil {
		return "", sdkutil.LoggingErrorMsg(err, "could not generate key")
	}
	did, err := encoder(&privKey.PublicKey)
	if err != nil {
		return "", sdkutil.LoggingErrorMsg(err, "could not encode did")
	}
	privJWK, err := jwk.FromRaw(privKey)
	if err != nil {
		return "", sdkutil.LoggingErrorMsg(err, "could not convert key to jwk")
	}
	jwkBytes, err := json.Marshal(privJWK)
	if err != nil {
		return "", framework.WrapError(err, framework.Serialization, "could not serialize private jwk")
	}
	if err = s.secrets.SaveSecret(ctx, did, string(jwkBytes)); err != nil {
		return "", err
	}
	logrus.Debugf("created did: %s", did)
	return did, nil
}

// DeleteDID drops the private key of a DID
func (s *Service) DeleteDID(ctx context.Context, did string) error {
	return s.secrets.DeleteSecretByKey(ctx, did)
}

func generateP256Key() (*ecdsa.PrivateKey, error) {
	_, privKey, err := crypto.GenerateKeyByKeyType(crypto.P256)
	if err != nil {
		return nil, err
	}
	switch k := privKey.(type) {
	case ecdsa.PrivateKey:
		return &k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	}
	return nil, fmt.Errorf("unexpected P-256 key type: %T", privKey)
}
