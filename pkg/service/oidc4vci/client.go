package oidc4vci

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/tbd54566975/wallet-service/pkg/service/common"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/oidc4vci/model"
)

// IssuerClient is the part of the protocol client the issuance engine drives
type IssuerClient interface {
	PreAuthorizedToken(ctx context.Context, tokenEndpoint, preAuthorizedCode, pin string) (*model.TokenResponse, error)
	RequestCredential(ctx context.Context, endpoint, accessToken string, request model.CredentialRequest) (*model.CredentialResponse, error)
	RequestDeferredCredential(ctx context.Context, endpoint, accessToken, transactionID string) (*model.CredentialResponse, error)
}

// Client speaks the wallet side of OpenID4VCI to issuers and their authorization servers
type Client struct {
	http *http.Client
}

func NewClient(httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("http client cannot be empty")
	}
	return &Client{http: httpClient}, nil
}

func (c *Client) GetCredentialIssuerMetadata(ctx context.Context, issuer string) (*model.CredentialIssuerMetadata, error) {
	var metadata model.CredentialIssuerMetadata
	if err := common.GetJSON(ctx, c.http, model.WellKnownURL(issuer, model.CredentialIssuerMetadataPath), "", &metadata); err != nil {
		return nil, errors.Wrapf(err, "getting credential issuer metadata of %s", issuer)
	}
	if metadata.CredentialEndpoint == "" {
		return nil, framework.NewErrorf(framework.Deserialization, "credential issuer metadata of %s has no credential endpoint", issuer)
	}
	return &metadata, nil
}

func (c *Client) GetAuthorisationServerMetadata(ctx context.Context, authorizationServer string) (*model.AuthorisationServerMetadata, error) {
	var metadata model.AuthorisationServerMetadata
	if err := common.GetJSON(ctx, c.http, model.WellKnownURL(authorizationServer, model.AuthorisationServerMetadataPath), "", &metadata); err != nil {
		return nil, errors.Wrapf(err, "getting authorisation server metadata of %s", authorizationServer)
	}
	if metadata.TokenEndpoint == "" {
		return nil, framework.NewErrorf(framework.Deserialization, "authorisation server metadata of %s has no token endpoint", authorizationServer)
	}
	return &metadata, nil
}

// PreAuthorizedToken redeems a pre-authorized code. The pin is sent both as user_pin and tx_code when given.
func (c *Client) PreAuthorizedToken(ctx context.Context, tokenEndpoint, preAuthorizedCode, pin string) (*model.TokenResponse, error) {
	form := url.Values{
		"grant_type":          {model.PreAuthorizedCodeGrantType},
		"pre-authorized_code": {preAuthorizedCode},
	}
	if pin != "" {
		form.Set("user_pin", pin)
		form.Set("tx_code", pin)
	}
	var token model.TokenResponse
	if err := common.PostFormJSON(ctx, c.http, tokenEndpoint, form, &token); err != nil {
		return nil, errors.Wrap(err, "requesting pre-authorized token")
	}
	if token.AccessToken == "" {
		return nil, framework.NewError(framework.Deserialization, "token response has no access token")
	}
	return &token, nil
}

func (c *Client) RequestCredential(ctx context.Context, endpoint, accessToken string, request model.CredentialRequest) (*model.CredentialResponse, error) {
	var response model.CredentialResponse
	if err := common.PostJSON(ctx, c.http, endpoint, accessToken, request, &response); err != nil {
		return nil, errors.Wrap(err, "requesting credential")
	}
	return &response, nil
}

func (c *Client) RequestDeferredCredential(ctx context.Context, endpoint, accessToken, transactionID string) (*model.CredentialResponse, error) {
	var response model.CredentialResponse
	request := model.DeferredCredentialRequest{TransactionID: transactionID}
	if err := common.PostJSON(ctx, c.http, endpoint, accessToken, request, &response); err != nil {
		return nil, errors.Wrap(err, "requesting deferred credential")
	}
	return &response, nil
}

var _ IssuerClient = (*Client)(nil)
