package model

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const (
	AuthorizationCodeGrantType = "authorization_code"
	PreAuthorizedCodeGrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
)

// CredentialOffer is what an issuer hands the wallet to start issuance, by value or by reference.
type CredentialOffer struct {
	CredentialIssuer string `json:"credential_issuer"`

	// Credentials lists the offered credentials of the pre-final drafts used by EBSI.
	Credentials []OfferedCredential `json:"credentials,omitempty"`

	// CredentialConfigurationIDs references credential_configurations_supported entries of the issuer metadata.
	// When set, it takes precedence over Credentials.
	CredentialConfigurationIDs []string `json:"credential_configuration_ids,omitempty"`

	Grants Grants `json:"grants"`
}

// OfferedCredential is one entry of the credentials of an offer
type OfferedCredential struct {
	Format         string          `json:"format"`
	Types          []string        `json:"types"`
	TrustFramework *TrustFramework `json:"trust_framework,omitempty"`
}

// UnmarshalJSON accepts both the object form and the bare string form, a credentials_supported id
func (o *OfferedCredential) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*o = OfferedCredential{Types: []string{id}}
		return nil
	}
	type offered OfferedCredential
	var parsed offered
	if err := json.Unmarshal(b, &parsed); err != nil {
		return errors.Wrap(err, "offered credential is neither an id nor an object")
	}
	*o = OfferedCredential(parsed)
	return nil
}

type TrustFramework struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URI  string `json:"uri"`
}

type Grants struct {
	AuthorizationCode *AuthorizationCodeGrant `json:"authorization_code,omitempty"`
	PreAuthorizedCode *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
}

type AuthorizationCodeGrant struct {
	IssuerState string `json:"issuer_state,omitempty"`
}

type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string  `json:"pre-authorized_code"`
	UserPinRequired   bool    `json:"user_pin_required,omitempty"`
	TxCode            *TxCode `json:"tx_code,omitempty"`
}

// PinRequired reports whether the token request must carry a user PIN or transaction code
func (p PreAuthorizedCodeGrant) PinRequired() bool {
	return p.UserPinRequired || p.TxCode != nil
}

type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

// IsDOMEProfile reports whether the offer references credential configurations, the DOME issuance profile
func (c CredentialOffer) IsDOMEProfile() bool {
	return c.CredentialConfigurationIDs != nil
}
