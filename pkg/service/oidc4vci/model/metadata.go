package model

import (
	"strings"
)

const (
	CredentialIssuerMetadataPath    = "/.well-known/openid-credential-issuer"
	AuthorisationServerMetadataPath = "/.well-known/openid-configuration"
)

// CredentialIssuerMetadata is published by issuers under /.well-known/openid-credential-issuer
type CredentialIssuerMetadata struct {
	CredentialIssuer                  string                             `json:"credential_issuer"`
	AuthorizationServer               string                             `json:"authorization_server,omitempty"`
	CredentialEndpoint                string                             `json:"credential_endpoint"`
	DeferredCredentialEndpoint        string                             `json:"deferred_credential_endpoint,omitempty"`
	CredentialsSupported              []CredentialSupported              `json:"credentials_supported,omitempty"`
	CredentialConfigurationsSupported map[string]CredentialConfiguration `json:"credential_configurations_supported,omitempty"`
}

type CredentialSupported struct {
	ID             string          `json:"id,omitempty"`
	Format         string          `json:"format"`
	Types          []string        `json:"types,omitempty"`
	TrustFramework *TrustFramework `json:"trust_framework,omitempty"`
}

type CredentialConfiguration struct {
	Format               string                `json:"format"`
	Scope                string                `json:"scope,omitempty"`
	CredentialDefinition *CredentialDefinition `json:"credential_definition,omitempty"`
}

type CredentialDefinition struct {
	Type []string `json:"type,omitempty"`
}

// AuthorizationServerURL is the authorization server of the issuer, the issuer itself when none is advertised
func (m CredentialIssuerMetadata) AuthorizationServerURL() string {
	if m.AuthorizationServer != "" {
		return m.AuthorizationServer
	}
	return m.CredentialIssuer
}

// ConfigurationFormat returns the format of a credential configuration
func (m CredentialIssuerMetadata) ConfigurationFormat(id string) (string, bool) {
	configuration, ok := m.CredentialConfigurationsSupported[id]
	if !ok || configuration.Format == "" {
		return "", false
	}
	return configuration.Format, true
}

// AuthorisationServerMetadata is published by authorization servers under /.well-known/openid-configuration
type AuthorisationServerMetadata struct {
	Issuer                 string   `json:"issuer"`
	AuthorizationEndpoint  string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint          string   `json:"token_endpoint"`
	JWKSURI                string   `json:"jwks_uri,omitempty"`
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported    []string `json:"grant_types_supported,omitempty"`
}

// WellKnownURL appends a well-known path to an issuer or authorization server identifier
func WellKnownURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}

// TokenResponse is the successful answer of a token endpoint
type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type,omitempty"`
	IDToken         string `json:"id_token,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`
	ExpiresIn       int    `json:"expires_in,omitempty"`
}
