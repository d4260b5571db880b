package credential

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
)

const (
	JWTFormat = "jwt_vc"
	CWTFormat = "cwt_vc"
)

// Service answers the wallet user's queries over their stored credentials
type Service struct {
	entities entity.Store
}

func NewCredentialService(entities entity.Store) (*Service, error) {
	service := Service{entities: entities}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

func (s Service) Type() framework.Type {
	return framework.Credential
}

func (s Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.entities == nil {
		ae.AppendString("no entity store configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("credential service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s Service) ListCredentials(ctx context.Context, request ListCredentialsRequest) (*ListCredentialsResponse, error) {
	logrus.Debugf("listing credentials: %+v", request)

	var creds []entity.CredentialEntity
	var err error
	if request.Type == "" {
		creds, err = s.entities.GetAllCredentialsByUserID(ctx, request.UserID)
	} else {
		creds, err = s.entities.GetCredentialByCredentialTypeAndUserID(ctx, request.Type, request.UserID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing credentials")
	}
	infos := make([]CredentialsBasicInfo, 0, len(creds))
	for _, c := range creds {
		infos = append(infos, NewBasicInfo(c))
	}
	return &ListCredentialsResponse{Credentials: infos}, nil
}

func (s Service) GetCredential(ctx context.Context, request GetCredentialRequest) (*GetCredentialResponse, error) {
	logrus.Debugf("getting credential: %s", request.ID)

	cred, err := s.entities.GetCredentialByIDAndUserID(ctx, request.ID, request.UserID)
	if err != nil {
		return nil, err
	}
	return &GetCredentialResponse{Credential: *cred}, nil
}

// DeleteCredential removes the credential and the deferred transaction linked to it, if any
func (s Service) DeleteCredential(ctx context.Context, request DeleteCredentialRequest) error {
	logrus.Debugf("deleting credential: %s", request.ID)

	tx, err := s.entities.GetTransactionLinkedToCredential(ctx, request.ID)
	if err != nil && !framework.IsKind(err, framework.NotFound) {
		return errors.Wrapf(err, "looking up transaction of credential %s", request.ID)
	}
	if err = s.entities.DeleteCredentialByIDAndUserID(ctx, request.ID, request.UserID); err != nil {
		return err
	}
	if tx == nil {
		return nil
	}
	return s.entities.DeleteTransactionByTransactionID(ctx, tx.ID)
}

// SelectableCredentials lists the user's final credentials declaring any of the given types, each once
func (s Service) SelectableCredentials(ctx context.Context, userID string, types []string) ([]CredentialsBasicInfo, error) {
	seen := make(map[string]bool)
	infos := make([]CredentialsBasicInfo, 0)
	for _, t := range types {
		creds, err := s.entities.GetCredentialByCredentialTypeAndUserID(ctx, t, userID)
		if err != nil {
			return nil, errors.Wrapf(err, "getting %s credentials", t)
		}
		for _, c := range creds {
			if c.Status.Value != entity.StatusValid || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			infos = append(infos, NewBasicInfo(c))
		}
	}
	return infos, nil
}

// SignedCredentials loads the given credentials of the user in their signed form, preferring jwt_vc over cwt_vc.
// A credential still awaiting issuance fails with CredentialNotAvailable.
func (s Service) SignedCredentials(ctx context.Context, userID string, ids []string) ([]SignedCredential, error) {
	signed := make([]SignedCredential, 0, len(ids))
	for _, id := range ids {
		cred, err := s.entities.GetCredentialByIDAndUserID(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		sc, err := toSigned(*cred)
		if err != nil {
			return nil, err
		}
		signed = append(signed, *sc)
	}
	return signed, nil
}

// AllSignedCredentials returns every final credential of the user
func (s Service) AllSignedCredentials(ctx context.Context, userID string) ([]SignedCredential, error) {
	creds, err := s.entities.GetAllCredentialsByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing credentials")
	}
	signed := make([]SignedCredential, 0, len(creds))
	for _, c := range creds {
		if c.Status.Value != entity.StatusValid {
			continue
		}
		sc, err := toSigned(c)
		if err != nil {
			logrus.WithError(err).Warnf("skipping credential %s", c.ID)
			continue
		}
		signed = append(signed, *sc)
	}
	return signed, nil
}

func toSigned(c entity.CredentialEntity) (*SignedCredential, error) {
	if c.Status.Value != entity.StatusValid {
		return nil, framework.NewErrorf(framework.CredentialNotAvailable, "credential %s is %s", c.ID, c.Status.Value)
	}
	sc := SignedCredential{ID: c.ID, Types: c.CredentialTypes.Value, Holder: HolderOf(c)}
	switch {
	case c.JWTCredential != nil:
		sc.Format, sc.Value = JWTFormat, c.JWTCredential.Value
	case c.CWTCredential != nil:
		sc.Format, sc.Value = CWTFormat, c.CWTCredential.Value
	default:
		return nil, framework.NewErrorf(framework.CredentialNotAvailable, "credential %s has no signed form", c.ID)
	}
	return &sc, nil
}

// HolderOf returns the wallet DID the credential was issued to. Credentials stored without one fall back to the
// id of their subject.
func HolderOf(c entity.CredentialEntity) string {
	if c.HolderDID != nil && c.HolderDID.Value != "" {
		return c.HolderDID.Value
	}
	subject, ok := c.JSONCredential.Value["credentialSubject"].(map[string]any)
	if !ok {
		return ""
	}
	holder, _ := subject["id"].(string)
	return holder
}
