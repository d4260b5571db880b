package router

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/presentation"
)

type PresentationRouter struct {
	service *presentation.Service
}

func NewPresentationRouter(s svcframework.Service) (*PresentationRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	presentationService, ok := s.(*presentation.Service)
	if !ok {
		return nil, fmt.Errorf("could not create presentation router with service type: %s", s.Type())
	}
	return &PresentationRouter{service: presentationService}, nil
}

type ResolveAuthorizationRequest struct {
	// The content of the verifier's QR code: an openid4vp:// or https url carrying the authorization request.
	QRContent string `json:"qrContent" validate:"required"`
}

// ResolveAuthorizationRequest reads a verifier's authorization request and lists the caller's credentials that can
// answer it
func (pr PresentationRouter) ResolveAuthorizationRequest(c *gin.Context) error {
	user, err := getWalletUser(c)
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not identify the wallet user", http.StatusUnauthorized)
	}

	var request ResolveAuthorizationRequest
	if err = framework.Decode(c.Request, &request); err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "invalid authorization request", http.StatusBadRequest)
	}

	ctx := c.Request.Context()
	dialect := pr.service.DialectOf(request.QRContent)
	logrus.Debugf("resolving %s authorization request", dialect)

	var selector *presentation.VcSelectorRequest
	switch dialect {
	case presentation.DOME:
		selector, err = pr.service.ResolveDOMERequest(ctx, user.ID, request.QRContent)
	default:
		selector, err = pr.service.ResolveCommonRequest(ctx, user.ID, request.QRContent)
	}
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not resolve authorization request", http.StatusInternalServerError)
	}
	return framework.Respond(c, selector, http.StatusOK)
}

// SubmitAuthorizationResponse presents the credentials the caller selected to the verifier
func (pr PresentationRouter) SubmitAuthorizationResponse(c *gin.Context) error {
	user, err := getWalletUser(c)
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not identify the wallet user", http.StatusUnauthorized)
	}

	var request presentation.VcSelectorResponse
	if err = framework.Decode(c.Request, &request); err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "invalid authorization response", http.StatusBadRequest)
	}

	ctx := c.Request.Context()
	var resp *presentation.SubmitResponse
	switch pr.service.DialectOf(request.RedirectURI) {
	case presentation.DOME:
		resp, err = pr.service.SubmitDOMEResponse(ctx, user.ID, request)
	default:
		resp, err = pr.service.SubmitCommonResponse(ctx, user.ID, request)
	}
	if err != nil {
		errMsg := fmt.Sprintf("could not submit authorization response to: %s", util.SanitizeLog(request.RedirectURI))
		return framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusInternalServerError)
	}
	return framework.Respond(c, resp, http.StatusOK)
}

type TurnstilePresentationRequest struct {
	CredentialID string `json:"credentialId" validate:"required"`
}

type TurnstilePresentationResponse struct {
	// base64url encoding of the CBOR presentation, to be rendered as a QR code.
	Presentation string `json:"presentation"`
}

// BuildTurnstilePresentation presents a single credential of the caller to the turnstile
func (pr PresentationRouter) BuildTurnstilePresentation(c *gin.Context) error {
	user, err := getWalletUser(c)
	if err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "could not identify the wallet user", http.StatusUnauthorized)
	}

	var request TurnstilePresentationRequest
	if err = framework.Decode(c.Request, &request); err != nil {
		return framework.LoggingRespondErrWithMsg(c, err, "invalid turnstile presentation request", http.StatusBadRequest)
	}

	encoded, err := pr.service.BuildTurnstilePresentation(c.Request.Context(), user.ID, request.CredentialID)
	if err != nil {
		errMsg := fmt.Sprintf("could not build turnstile presentation of: %s", request.CredentialID)
		return framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusInternalServerError)
	}
	resp := TurnstilePresentationResponse{Presentation: base64.RawURLEncoding.EncodeToString(encoded)}
	return framework.Respond(c, resp, http.StatusOK)
}
