package presentation

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
)

// ResolveDOMERequest reads a DOME authorization request. DOME verifiers do not sign their requests, so the
// parameters are taken from the url or the request object as they are.
func (s Service) ResolveDOMERequest(ctx context.Context, userID, requestURI string) (*VcSelectorRequest, error) {
	logrus.Debugf("resolving DOME authorization request: %s", util.SanitizeLog(requestURI))

	request, err := s.domeRequest(ctx, requestURI)
	if err != nil {
		return nil, err
	}
	return s.selectorFor(ctx, userID, *request, DOMEScopeTypes(request.CredentialScopes()))
}

// SubmitDOMEResponse presents the selected credentials to a DOME verifier. The vp_token is the base64url encoding of
// the signed presentation.
func (s Service) SubmitDOMEResponse(ctx context.Context, userID string, response VcSelectorResponse) (*SubmitResponse, error) {
	logrus.Debugf("submitting DOME authorization response to: %s", util.SanitizeLog(response.RedirectURI))

	vp, creds, err := s.present(ctx, userID, response.SelectedIDs(), s.config.DOMEVerifierID, response.Nonce)
	if err != nil {
		return nil, err
	}
	vpToken := base64.URLEncoding.EncodeToString([]byte(vp.JWT))
	form, err := responseForm(response.State, vpToken, creds)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, response.RedirectURI, form)
}

func (s Service) domeRequest(ctx context.Context, requestURI string) (*AuthorizationRequest, error) {
	u, err := url.Parse(requestURI)
	if err != nil {
		return nil, framework.WrapError(err, framework.Deserialization, "invalid authorization request uri")
	}
	token, err := s.requestObject(ctx, requestURI)
	if err != nil {
		return nil, err
	}
	if token == "" {
		request := authorizationRequestFromQuery(u.Query())
		return &request, nil
	}
	_, parsed, err := util.ParseJWT(token)
	if err != nil {
		return nil, framework.WrapError(err, framework.MalformedJWT, "authorization request is not a jwt")
	}
	request := authorizationRequestFromClaims(parsed.PrivateClaims())
	if request.ClientID == "" {
		request.ClientID = parsed.Issuer()
	}
	return &request, nil
}

// DOMEScopeTypes maps DOME scopes such as dome.credentials.presentation.LEARCredentialEmployee to the credential type,
// the last dot separated segment.
func DOMEScopeTypes(scopes []string) []string {
	types := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		t := scope[strings.LastIndex(scope, ".")+1:]
		if t != "" {
			types = append(types, t)
		}
	}
	return types
}
