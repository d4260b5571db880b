package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/credential"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/issuance"
)

type IssuanceRouter struct {
	service *issuance.Service
}

func NewIssuanceRouter(s svcframework.Service) (*IssuanceRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	issuanceService, ok := s.(*issuance.Service)
	if !ok {
		return nil, fmt.Errorf("could not create issuance router with service type: %s", s.Type())
	}
	return &IssuanceRouter{service: issuanceService}, nil
}

type IssueFromOfferRequest struct {
	// The credential offer uri, as scanned from the issuer's QR code.
	CredentialOfferURI string `json:"credentialOfferUri" validate:"required"`

	// The PIN sent to the user out of band, when the offer requires one.
	Pin string `json:"pin,omitempty"`
}

func (r IssueFromOfferRequest) toServiceRequest(accessToken string) issuance.IssueRequest {
	return issuance.IssueRequest{
		AccessToken: accessToken,
		OfferURI:    r.CredentialOfferURI,
		Pin:         r.Pin,
	}
}

type IssueFromOfferResponse struct {
	// Ids of the stored credentials. Credentials the issuer deferred are stored as ISSUED.
	CredentialIDs []string `json:"credentialIds"`
}

// IssueFromOffer redeems a credential offer on behalf of the calling user
func (ir IssuanceRouter) IssueFromOffer(c *gin.Context) error {
	user, err := getWalletUser(c)
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not identify the wallet user", http.StatusUnauthorized)
	}

	var request IssueFromOfferRequest
	invalidIssueRequest := "invalid issue from offer request"
	if err = framework.Decode(c.Request, &request); err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, invalidIssueRequest, http.StatusBadRequest)
	}

	resp, err := ir.service.IssueFromOffer(c.Request.Context(), request.toServiceRequest(user.AccessToken))
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not issue from offer", http.StatusInternalServerError)
	}
	return framework.Respond(c, IssueFromOfferResponse{CredentialIDs: resp.CredentialIDs}, http.StatusCreated)
}

type CompleteDeferredResponse struct {
	// READY once the issuer delivered the credential, PENDING while it still defers it.
	State      issuance.DeferredState          `json:"state"`
	Credential credential.CredentialsBasicInfo `json:"credential"`
}

// CompleteDeferred asks the issuer once for a credential it deferred. A still pending credential is answered
// with 202.
func (ir IssuanceRouter) CompleteDeferred(c *gin.Context) error {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		return framework.LoggingRespondErrMsg(c, "cannot complete deferred credential without an ID parameter", http.StatusBadRequest)
	}
	user, err := getWalletUser(c)
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not identify the wallet user", http.StatusUnauthorized)
	}

	result, err := ir.service.CompleteDeferred(c.Request.Context(), issuance.CompleteDeferredRequest{UserID: user.ID, CredentialID: *id})
	if err != nil {
		errMsg := fmt.Sprintf("could not complete deferred credential with id: %s", *id)
		return framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusInternalServerError)
	}

	status := http.StatusOK
	if result.State == issuance.DeferredPending {
		status = http.StatusAccepted
	}
	resp := CompleteDeferredResponse{State: result.State, Credential: credential.NewBasicInfo(result.Credential)}
	return framework.Respond(c, resp, status)
}
