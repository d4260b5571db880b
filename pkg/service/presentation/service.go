package presentation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/internal/keyaccess"
	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/common"
	"github.com/tbd54566975/wallet-service/pkg/service/credential"
	"github.com/tbd54566975/wallet-service/pkg/service/did"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
)

// Dialect is the flavour of OpenID4VP a verifier speaks
type Dialect string

const (
	Common Dialect = "common"
	DOME   Dialect = "dome"
)

const (
	requestParam     = "request"
	requestURIParam  = "request_uri"
	redirectURIParam = "redirect_uri"
	responseURIParam = "response_uri"
)

// Service resolves verifier authorization requests into credential selections and answers them with signed
// presentations
type Service struct {
	config      config.PresentationServiceConfig
	http        *http.Client
	credentials *credential.Service
	builder     *Builder
	marketplace *regexp.Regexp
}

func NewPresentationService(cfg config.PresentationServiceConfig, httpClient *http.Client, credentials *credential.Service, builder *Builder) (*Service, error) {
	marketplace, err := regexp.Compile(cfg.DOMEMarketplacePattern)
	if err != nil {
		return nil, errors.Wrap(err, "compiling DOME marketplace pattern")
	}
	service := Service{
		config:      cfg,
		credentials: credentials,
		builder:     builder,
		marketplace: marketplace,
	}
	if httpClient != nil {
		service.http = common.WithoutRedirects(httpClient)
	}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

func (s Service) Type() framework.Type {
	return framework.Presentation
}

func (s Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.http == nil {
		ae.AppendString("no http client configured")
	}
	if s.credentials == nil {
		ae.AppendString("no credential service configured")
	}
	if s.builder == nil {
		ae.AppendString("no presentation builder configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("presentation service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

// DialectOf picks DOME when the verifier's redirect uri matches the marketplace pattern. The uri is taken from the
// redirect_uri or response_uri parameter of the given content when present, otherwise the content itself is matched.
func (s Service) DialectOf(content string) Dialect {
	target := content
	if u, err := url.Parse(content); err == nil {
		q := u.Query()
		if r := firstNonEmpty(q.Get(redirectURIParam), q.Get(responseURIParam)); r != "" {
			target = r
		}
	}
	if s.marketplace.MatchString(target) {
		return DOME
	}
	return Common
}

// ResolveCommonRequest reads the signed authorization request behind a QR code, checks it was signed by the
// did:key of its client, and lists the user's credentials matching its scopes.
func (s Service) ResolveCommonRequest(ctx context.Context, userID, qrContent string) (*VcSelectorRequest, error) {
	logrus.Debugf("resolving authorization request: %s", util.SanitizeLog(qrContent))

	token, err := s.requestObject(ctx, qrContent)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, framework.NewError(framework.Deserialization, "authorization request carries neither request nor request_uri")
	}
	request, err := verifyRequestObject(token)
	if err != nil {
		return nil, err
	}
	return s.selectorFor(ctx, userID, *request, request.CredentialScopes())
}

// SubmitCommonResponse presents the selected credentials to the verifier
func (s Service) SubmitCommonResponse(ctx context.Context, userID string, response VcSelectorResponse) (*SubmitResponse, error) {
	logrus.Debugf("submitting authorization response to: %s", util.SanitizeLog(response.RedirectURI))

	vp, creds, err := s.present(ctx, userID, response.SelectedIDs(), s.config.VerifierID, util.RandomNonce())
	if err != nil {
		return nil, err
	}
	form, err := responseForm(response.State, vp.JWT, creds)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, response.RedirectURI, form)
}

func (s Service) selectorFor(ctx context.Context, userID string, request AuthorizationRequest, types []string) (*VcSelectorRequest, error) {
	selectable, err := s.credentials.SelectableCredentials(ctx, userID, types)
	if err != nil {
		return nil, err
	}
	return &VcSelectorRequest{
		RedirectURI:      request.RedirectURI,
		State:            request.State,
		Nonce:            request.Nonce,
		SelectableVCList: selectable,
	}, nil
}

// present builds and signs a presentation of the user's credentials, held by the DID the first one is bound to
func (s Service) present(ctx context.Context, userID string, ids []string, audience, nonce string) (*SignedPresentation, []credential.SignedCredential, error) {
	if len(ids) == 0 {
		return nil, nil, framework.NewError(framework.Deserialization, "no credential selected")
	}
	creds, err := s.credentials.SignedCredentials(ctx, userID, ids)
	if err != nil {
		return nil, nil, err
	}
	values := make([]string, 0, len(creds))
	for _, c := range creds {
		values = append(values, c.Value)
	}
	vp, err := s.builder.Build(ctx, BuildRequest{
		Holder:      creds[0].Holder,
		Audience:    audience,
		Nonce:       nonce,
		Credentials: values,
	})
	if err != nil {
		return nil, nil, err
	}
	return vp, creds, nil
}

func responseForm(state, vpToken string, creds []credential.SignedCredential) (url.Values, error) {
	submission, err := json.Marshal(NewPresentationSubmission(util.RandomNonce(), creds))
	if err != nil {
		return nil, framework.WrapError(err, framework.Serialization, "could not serialize presentation submission")
	}
	form := url.Values{
		"vp_token":                {vpToken},
		"presentation_submission": {string(submission)},
	}
	if state != "" {
		form.Set("state", state)
	}
	return form, nil
}

func (s Service) post(ctx context.Context, redirectURI string, form url.Values) (*SubmitResponse, error) {
	if redirectURI == "" {
		return nil, framework.NewError(framework.Deserialization, "authorization response has no redirect uri")
	}
	resp, err := common.PostForm(ctx, s.http, redirectURI, form)
	if err != nil {
		return nil, err
	}
	if err = resp.CheckStatus(); err != nil {
		return nil, err
	}
	result := SubmitResponse{}
	if util.IsRedirect(resp.StatusCode) {
		result.RedirectURI = resp.Header.Get("Location")
	}
	return &result, nil
}

// requestObject returns the request JWT of the content, dereferencing request_uri. A bare JWT is returned as is.
func (s Service) requestObject(ctx context.Context, content string) (string, error) {
	if !strings.Contains(content, "://") && strings.Count(content, ".") == 2 {
		return content, nil
	}
	u, err := url.Parse(content)
	if err != nil {
		return "", framework.WrapError(err, framework.Deserialization, "invalid authorization request uri")
	}
	q := u.Query()
	if token := q.Get(requestParam); token != "" {
		return token, nil
	}
	requestURI := q.Get(requestURIParam)
	if requestURI == "" {
		return "", nil
	}
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
	return strings.TrimSpace(string(resp.Body)), nil
}

// verifyRequestObject checks client_id equals iss and that the request is signed by the did:key of iss
func verifyRequestObject(token string) (*AuthorizationRequest, error) {
	sig, parsed, err := util.ParseJWT(token)
	if err != nil {
		return nil, framework.WrapError(err, framework.MalformedJWT, "authorization request is not a jwt")
	}
	request := authorizationRequestFromClaims(parsed.PrivateClaims())
	if request.ClientID == "" || request.ClientID != parsed.Issuer() {
		return nil, framework.NewErrorf(framework.MalformedJWT, "client_id %q does not match request issuer %q", request.ClientID, parsed.Issuer())
	}
	pub, err := did.PublicKeyFromDIDKey(parsed.Issuer())
	if err != nil {
		return nil, framework.WrapError(err, framework.MalformedJWT, "request issuer is not a did:key")
	}
	kid := sig.ProtectedHeaders().KeyID()
	if kid == "" {
		kid = did.KeyID(parsed.Issuer())
	}
	verifier, err := keyaccess.NewJWKKeyAccessVerifier(kid, pub)
	if err != nil {
		return nil, framework.WrapError(err, framework.MalformedJWT, "unsupported request signing key")
	}
	if _, err = verifier.Verify(keyaccess.JWT(token)); err != nil {
		return nil, framework.WrapError(err, framework.MalformedJWT, "authorization request signature does not verify")
	}
	return &request, nil
}

func authorizationRequestFromClaims(claims map[string]any) AuthorizationRequest {
	str := func(name string) string {
		v, _ := claims[name].(string)
		return v
	}
	return AuthorizationRequest{
		Scope:        splitScope(str("scope")),
		ResponseType: str("response_type"),
		ResponseMode: str("response_mode"),
		ClientID:     str("client_id"),
		State:        str("state"),
		Nonce:        str("nonce"),
		RedirectURI:  firstNonEmpty(str(redirectURIParam), str(responseURIParam)),
	}
}

func authorizationRequestFromQuery(q url.Values) AuthorizationRequest {
	return AuthorizationRequest{
		Scope:        splitScope(q.Get("scope")),
		ResponseType: q.Get("response_type"),
		ResponseMode: q.Get("response_mode"),
		ClientID:     q.Get("client_id"),
		State:        q.Get("state"),
		Nonce:        q.Get("nonce"),
		RedirectURI:  firstNonEmpty(q.Get(redirectURIParam), q.Get(responseURIParam)),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
