package signing

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/internal/keyaccess"
	"github.com/tbd54566975/wallet-service/pkg/service/did"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/secret"
)

// DocumentType is the kind of document being signed, which fixes its typ header
type DocumentType string

const (
	Proof        DocumentType = "proof"
	Presentation DocumentType = "vp"
	IDToken      DocumentType = "id_token"

	ProofJWTType = "openid4vci-proof+jwt"
	JWTType      = "JWT"
)

func (d DocumentType) typ() (string, error) {
	switch d {
	case Proof:
		return ProofJWTType, nil
	case Presentation, IDToken:
		return JWTType, nil
	}
	return "", fmt.Errorf("unsupported document type: %q", d)
}

type SignRequest struct {
	DID          string
	Payload      map[string]any
	DocumentType DocumentType
}

// Signer signs documents with the key of a wallet DID
type Signer interface {
	Sign(ctx context.Context, request SignRequest) (keyaccess.JWT, error)
}

type Service struct {
	secrets secret.Store
}

func NewSigningService(secrets secret.Store) (*Service, error) {
	if secrets == nil {
		return nil, errors.New("secret store cannot be empty")
	}
	return &Service{secrets: secrets}, nil
}

func (s *Service) Type() framework.Type {
	return framework.Signing
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.secrets == nil {
		ae.AppendString("no secret store configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("signing service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

// Sign signs the payload as a compact JWS with the private key stored for the DID
func (s *Service) Sign(ctx context.Context, request SignRequest) (keyaccess.JWT, error) {
	logrus.Debugf("signing %s document for: %s", request.DocumentType, request.DID)

	typ, err := request.DocumentType.typ()
	if err != nil {
		return "", err
	}
	keyAccess, err := s.keyAccess(ctx, request.DID)
	if err != nil {
		return "", err
	}
	token, err := keyAccess.Sign(request.Payload, map[string]any{"typ": typ})
	if err != nil {
		return "", sdkutil.LoggingErrorMsgf(err, "could not sign %s document", request.DocumentType)
	}
	return *token, nil
}

func (s *Service) keyAccess(ctx context.Context, holder string) (*keyaccess.JWKKeyAccess, error) {
	stored, err := s.secrets.GetSecretByKey(ctx, holder)
	if err != nil {
		return nil, errors.Wrapf(err, "getting key for: %s", holder)
	}
	privJWK, err := jwk.ParseKey([]byte(stored))
	if err != nil {
		return nil, framework.WrapError(err, framework.Deserialization, "stored key is not a jwk")
	}
	var privKey any
	if err = privJWK.Raw(&privKey); err != nil {
		return nil, framework.WrapError(err, framework.Deserialization, "stored jwk has no raw key")
	}
	return keyaccess.NewJWKKeyAccess(did.KeyID(holder), privKey)
}
