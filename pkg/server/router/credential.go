package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/credential"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
)

const (
	IDParam   string = "id"
	TypeParam string = "type"
)

type CredentialRouter struct {
	service *credential.Service
}

func NewCredentialRouter(s svcframework.Service) (*CredentialRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	credService, ok := s.(*credential.Service)
	if !ok {
		return nil, fmt.Errorf("could not create credential router with service type: %s", s.Type())
	}
	return &CredentialRouter{service: credService}, nil
}

type ListCredentialsResponse struct {
	Credentials []credential.CredentialsBasicInfo `json:"credentials"`
}

// ListCredentials lists the caller's credentials, optionally only those of the given type
func (cr CredentialRouter) ListCredentials(c *gin.Context) error {
	user, err := getWalletUser(c)
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not identify the wallet user", http.StatusUnauthorized)
	}

	request := credential.ListCredentialsRequest{UserID: user.ID}
	if credentialType := framework.GetQueryValue(c, TypeParam); credentialType != nil {
		request.Type = *credentialType
	}
	resp, err := cr.service.ListCredentials(c.Request.Context(), request)
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not list credentials", http.StatusInternalServerError)
	}
	return framework.Respond(c, ListCredentialsResponse{Credentials: resp.Credentials}, http.StatusOK)
}

type GetCredentialResponse struct {
	ID         string                          `json:"id"`
	Info       credential.CredentialsBasicInfo `json:"info"`
	Credential map[string]any                  `json:"credential"`
	JWT        string                          `json:"jwt_vc,omitempty"`
	CWT        string                          `json:"cwt_vc,omitempty"`
}

// GetCredential returns one of the caller's credentials in every format it is held in
func (cr CredentialRouter) GetCredential(c *gin.Context) error {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		return framework.LoggingRespondErrMsg(c, "cannot get credential without ID parameter", http.StatusBadRequest)
	}
	user, err := getWalletUser(c)
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not identify the wallet user", http.StatusUnauthorized)
	}

	resp, err := cr.service.GetCredential(c.Request.Context(), credential.GetCredentialRequest{UserID: user.ID, ID: *id})
	if err != nil {
		errMsg := fmt.Sprintf("could not get credential with id: %s", *id)
		return framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusInternalServerError)
	}

	stored := resp.Credential
	response := GetCredentialResponse{
		ID:         stored.ID,
		Info:       credential.NewBasicInfo(stored),
		Credential: stored.JSONCredential.Value,
	}
	if stored.JWTCredential != nil {
		response.JWT = stored.JWTCredential.Value
	}
	if stored.CWTCredential != nil {
		response.CWT = stored.CWTCredential.Value
	}
	return framework.Respond(c, response, http.StatusOK)
}

// DeleteCredential removes one of the caller's credentials
func (cr CredentialRouter) DeleteCredential(c *gin.Context) error {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		return framework.LoggingRespondErrMsg(c, "cannot delete credential without ID parameter", http.StatusBadRequest)
	}
	user, err := getWalletUser(c)
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not identify the wallet user", http.StatusUnauthorized)
	}

	if err = cr.service.DeleteCredential(c.Request.Context(), credential.DeleteCredentialRequest{UserID: user.ID, ID: *id}); err != nil {
		errMsg := fmt.Sprintf("could not delete credential with id: %s", *id)
		return framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusInternalServerError)
	}
	return framework.Respond(c, nil, http.StatusNoContent)
}
