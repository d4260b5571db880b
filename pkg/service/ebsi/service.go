package ebsi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/common"
	"github.com/tbd54566975/wallet-service/pkg/service/credential"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/oidc4vci/model"
	"github.com/tbd54566975/wallet-service/pkg/service/presentation"
	"github.com/tbd54566975/wallet-service/pkg/service/signing"
)

const (
	openIDScope             = "openid"
	openIDCredentialType    = "openid_credential"
	codeChallengeMethodS256 = "S256"
	idTokenLifetime         = 5 * time.Minute
)

// TokenRequest is everything the authorization code flow needs to know about the offer being redeemed
type TokenRequest struct {
	UserID                      string
	DID                         string
	Offer                       model.CredentialOffer
	IssuerMetadata              model.CredentialIssuerMetadata
	AuthorisationServerMetadata model.AuthorisationServerMetadata
}

type authorizationDetail struct {
	Type      string   `json:"type"`
	Format    string   `json:"format,omitempty"`
	Types     []string `json:"types,omitempty"`
	Locations []string `json:"locations,omitempty"`
}

type clientMetadata struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
}

// authorizationRequest is what the authorization server asks of the wallet in its redirect
type authorizationRequest struct {
	ResponseType             string
	ClientID                 string
	RedirectURI              string
	State                    string
	Nonce                    string
	PresentationDefinitionID string
}

// Service runs the EBSI authorization code flow, answering the authorization server's id_token or vp_token request
// before exchanging the code for a token.
type Service struct {
	http          *http.Client
	tokenClient   *http.Client
	signer        signing.Signer
	presentations *presentation.Builder
	credentials   *credential.Service
	clock         clock.Clock
	redirectURI   string
}

func NewEBSIService(cfg config.IssuanceServiceConfig, httpClient *http.Client, signer signing.Signer, presentations *presentation.Builder, credentials *credential.Service, c clock.Clock) (*Service, error) {
	if c == nil {
		c = clock.New()
	}
	service := Service{
		tokenClient:   httpClient,
		signer:        signer,
		presentations: presentations,
		credentials:   credentials,
		clock:         c,
		redirectURI:   cfg.RedirectURI,
	}
	if httpClient != nil {
		service.http = common.WithoutRedirects(httpClient)
	}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

func (s Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.http == nil {
		ae.AppendString("no http client configured")
	}
	if s.signer == nil {
		ae.AppendString("no signer configured")
	}
	if s.presentations == nil {
		ae.AppendString("no presentation builder configured")
	}
	if s.credentials == nil {
		ae.AppendString("no credential service configured")
	}
	if s.redirectURI == "" {
		ae.AppendString("no redirect uri configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("ebsi service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

// AuthorizationCodeToken obtains an access token through the authorization code grant, authenticating the wallet
// with an id_token or a vp_token as the authorization server requests.
func (s Service) AuthorizationCodeToken(ctx context.Context, request TokenRequest) (*model.TokenResponse, error) {
	logrus.Debugf("running authorization code flow with %s for: %s", request.AuthorisationServerMetadata.Issuer, request.DID)

	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}
	oauthConfig := s.oauthConfig(request)
	authURL, err := s.authCodeURL(oauthConfig, request, verifier)
	if err != nil {
		return nil, err
	}

	authRequest, err := s.requestAuthorization(ctx, authURL)
	if err != nil {
		return nil, err
	}
	flow, err := DispatchResponseType(authRequest.ResponseType)
	if err != nil {
		return nil, err
	}
	if authRequest.ClientID == "" {
		authRequest.ClientID = request.AuthorisationServerMetadata.Issuer
	}

	var form url.Values
	switch flow {
	case IDTokenFlow:
		form, err = s.idTokenResponse(ctx, request.DID, *authRequest)
	case VPTokenFlow:
		form, err = s.vpTokenResponse(ctx, request, *authRequest)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "answering %s request", flow)
	}

	code, err := s.postForCode(ctx, authRequest.RedirectURI, form)
	if err != nil {
		return nil, err
	}
	return s.exchange(ctx, oauthConfig, code, verifier)
}

func (s Service) oauthConfig(request TokenRequest) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    request.DID,
		RedirectURL: s.redirectURI,
		Scopes:      []string{openIDScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   request.AuthorisationServerMetadata.AuthorizationEndpoint,
			TokenURL:  request.AuthorisationServerMetadata.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (s Service) authCodeURL(oauthConfig *oauth2.Config, request TokenRequest, verifier string) (string, error) {
	if oauthConfig.Endpoint.AuthURL == "" {
		return "", framework.NewError(framework.Deserialization, "authorisation server metadata has no authorization endpoint")
	}
	details := make([]authorizationDetail, 0, len(request.Offer.Credentials))
	for _, c := range request.Offer.Credentials {
		details = append(details, authorizationDetail{
			Type:      openIDCredentialType,
			Format:    c.Format,
			Types:     c.Types,
			Locations: []string{request.Offer.CredentialIssuer},
		})
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return "", framework.WrapError(err, framework.Serialization, "could not serialize authorization details")
	}
	metadataJSON, err := json.Marshal(clientMetadata{AuthorizationEndpoint: s.redirectURI})
	if err != nil {
		return "", framework.WrapError(err, framework.Serialization, "could not serialize client metadata")
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", CodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", codeChallengeMethodS256),
		oauth2.SetAuthURLParam("authorization_details", string(detailsJSON)),
		oauth2.SetAuthURLParam("client_metadata", string(metadataJSON)),
	}
	if grant := request.Offer.Grants.AuthorizationCode; grant != nil && grant.IssuerState != "" {
		opts = append(opts, oauth2.SetAuthURLParam("issuer_state", grant.IssuerState))
	}
	return oauthConfig.AuthCodeURL(util.RandomNonce(), opts...), nil
}

// requestAuthorization calls the authorization endpoint and reads the request carried by its redirect
func (s Service) requestAuthorization(ctx context.Context, authURL string) (*authorizationRequest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return nil, framework.WrapError(err, framework.Communication, "creating request")
	}
	resp, err := common.Do(s.http, req)
	if err != nil {
		return nil, err
	}
	if !util.IsRedirect(resp.StatusCode) {
		return nil, framework.NewErrorf(framework.Communication, "authorization endpoint answered %d instead of redirecting", resp.StatusCode)
	}
	location, err := resp.Location()
	if err != nil {
		return nil, err
	}
	q := location.Query()
	if e := q.Get("error"); e != "" {
		return nil, framework.NewErrorf(framework.Communication, "authorization failed: %s: %s", e, q.Get("error_description"))
	}

	request := authorizationRequest{
		ResponseType:             q.Get("response_type"),
		ClientID:                 q.Get("client_id"),
		RedirectURI:              q.Get("redirect_uri"),
		State:                    q.Get("state"),
		Nonce:                    q.Get("nonce"),
		PresentationDefinitionID: definitionID(q.Get("presentation_definition")),
	}
	token := q.Get("request")
	if token == "" && q.Get("request_uri") != "" {
		if token, err = s.fetchRequestObject(ctx, q.Get("request_uri")); err != nil {
			return nil, err
		}
	}
	if token != "" {
		if err = request.mergeRequestObject(token); err != nil {
			return nil, err
		}
	}
	return &request, nil
}

func (s Service) fetchRequestObject(ctx context.Context, requestURI string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURI, nil)
	if err != nil {
		return "", framework.WrapError(err, framework.Communication, "creating request")
	}
	resp, err := common.Do(s.http, req)
	if err != nil {
		return "", err
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return "", framework.NewErrorf(framework.Communication, "request_uri returned %d", resp.StatusCode)
	}
	return string(resp.Body), nil
}

// mergeRequestObject overrides the redirect parameters with the claims of the request object, which take precedence
func (r *authorizationRequest) mergeRequestObject(token string) error {
	_, parsed, err := util.ParseJWT(token)
	if err != nil {
		return framework.WrapError(err, framework.MalformedJWT, "authorization request object is not a jwt")
	}
	set := func(field *string, claim string) {
		if v := util.StringClaim(parsed, claim); v != "" {
			*field = v
		}
	}
	set(&r.ResponseType, "response_type")
	set(&r.ClientID, "client_id")
	set(&r.RedirectURI, "redirect_uri")
	set(&r.State, "state")
	set(&r.Nonce, "nonce")
	if pd, ok := parsed.Get("presentation_definition"); ok {
		if m, ok := pd.(map[string]any); ok {
			r.PresentationDefinitionID, _ = m["id"].(string)
		}
	}
	return nil
}

func definitionID(presentationDefinition string) string {
	if presentationDefinition == "" {
		return ""
	}
	var pd struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(presentationDefinition), &pd); err != nil {
		logrus.WithError(err).Warn("ignoring malformed presentation definition")
		return ""
	}
	return pd.ID
}

func (s Service) idTokenResponse(ctx context.Context, holder string, request authorizationRequest) (url.Values, error) {
	now := s.clock.Now()
	claims := map[string]any{
		"iss": holder,
		"sub": holder,
		"aud": request.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(idTokenLifetime).Unix(),
	}
	if request.Nonce != "" {
		claims["nonce"] = request.Nonce
	}
	idToken, err := s.signer.Sign(ctx, signing.SignRequest{
		DID:          holder,
		Payload:      claims,
		DocumentType: signing.IDToken,
	})
	if err != nil {
		return nil, err
	}
	form := url.Values{"id_token": {idToken.String()}}
	if request.State != "" {
		form.Set("state", request.State)
	}
	return form, nil
}

func (s Service) vpTokenResponse(ctx context.Context, tokenRequest TokenRequest, request authorizationRequest) (url.Values, error) {
	creds, err := s.credentials.AllSignedCredentials(ctx, tokenRequest.UserID)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(creds))
	for _, c := range creds {
		values = append(values, c.Value)
	}
	vp, err := s.presentations.Build(ctx, presentation.BuildRequest{
		Holder:      tokenRequest.DID,
		Audience:    request.ClientID,
		Nonce:       request.Nonce,
		Credentials: values,
	})
	if err != nil {
		return nil, err
	}
	submission, err := json.Marshal(presentation.NewPresentationSubmission(request.PresentationDefinitionID, creds))
	if err != nil {
		return nil, framework.WrapError(err, framework.Serialization, "could not serialize presentation submission")
	}
	form := url.Values{
		"vp_token":                {vp.JWT},
		"presentation_submission": {string(submission)},
	}
	if request.State != "" {
		form.Set("state", request.State)
	}
	return form, nil
}

// postForCode posts the wallet's answer and reads the authorization code from the redirect that follows
func (s Service) postForCode(ctx context.Context, redirectURI string, form url.Values) (string, error) {
	if redirectURI == "" {
		return "", framework.NewError(framework.Deserialization, "authorization request has no redirect_uri")
	}
	resp, err := common.PostForm(ctx, s.http, redirectURI, form)
	if err != nil {
		return "", err
	}
	if err = resp.CheckStatus(); err != nil {
		return "", err
	}
	location, err := resp.Location()
	if err != nil {
		return "", err
	}
	q := location.Query()
	if e := q.Get("error"); e != "" {
		return "", framework.NewErrorf(framework.Communication, "authorization failed: %s: %s", e, q.Get("error_description"))
	}
	code := q.Get("code")
	if code == "" {
		return "", framework.NewError(framework.Communication, "authorization server returned no code")
	}
	return code, nil
}

func (s Service) exchange(ctx context.Context, oauthConfig *oauth2.Config, code, verifier string) (*model.TokenResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.tokenClient)
	token, err := oauthConfig.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return nil, framework.WrapError(err, framework.Communication, "exchanging authorization code")
	}
	response := model.TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	}
	response.IDToken, _ = token.Extra("id_token").(string)
	response.CNonce, _ = token.Extra("c_nonce").(string)
	if v, ok := token.Extra("c_nonce_expires_in").(float64); ok {
		response.CNonceExpiresIn = int(v)
	}
	if v, ok := token.Extra("expires_in").(float64); ok {
		response.ExpiresIn = int(v)
	}
	return &response, nil
}
