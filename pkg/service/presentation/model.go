package presentation

import (
	"fmt"
	"strings"

	"github.com/TBD54566975/ssi-sdk/credential/exchange"
	"github.com/google/uuid"

	"github.com/tbd54566975/wallet-service/pkg/service/credential"
)

const (
	openIDScope = "openid"
)

// AuthorizationRequest is the part of a verifier's authorization request the wallet acts on
type AuthorizationRequest struct {
	Scope        []string `json:"scope"`
	ResponseType string   `json:"response_type"`
	ResponseMode string   `json:"response_mode,omitempty"`
	ClientID     string   `json:"client_id"`
	State        string   `json:"state,omitempty"`
	Nonce        string   `json:"nonce,omitempty"`
	RedirectURI  string   `json:"redirect_uri"`
}

// CredentialScopes returns the scopes naming credential types, dropping openid
func (r AuthorizationRequest) CredentialScopes() []string {
	scopes := make([]string, 0, len(r.Scope))
	for _, s := range r.Scope {
		if s != "" && s != openIDScope {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func splitScope(scope string) []string {
	return strings.Fields(scope)
}

// VcSelectorRequest lists the credentials the user may present to a verifier
type VcSelectorRequest struct {
	RedirectURI      string                            `json:"redirectUri"`
	State            string                            `json:"state"`
	Nonce            string                            `json:"nonce,omitempty"`
	SelectableVCList []credential.CredentialsBasicInfo `json:"selectableVcList"`
}

// VcSelectorResponse carries the user's selection back, to be presented to the verifier
type VcSelectorResponse struct {
	RedirectURI    string                            `json:"redirectUri" validate:"required"`
	State          string                            `json:"state"`
	Nonce          string                            `json:"nonce,omitempty"`
	SelectedVCList []credential.CredentialsBasicInfo `json:"selectedVcList" validate:"required,min=1"`
}

// SelectedIDs returns the ids of the selected credentials in order
func (r VcSelectorResponse) SelectedIDs() []string {
	ids := make([]string, 0, len(r.SelectedVCList))
	for _, vc := range r.SelectedVCList {
		ids = append(ids, vc.ID)
	}
	return ids
}

// SubmitResponse is the verifier's answer to an authorization response
type SubmitResponse struct {
	// RedirectURI is where the verifier sends the user next, when it redirects
	RedirectURI string `json:"redirectUri,omitempty"`
}

// NewPresentationSubmission describes where each credential sits in a jwt_vp
func NewPresentationSubmission(definitionID string, creds []credential.SignedCredential) exchange.PresentationSubmission {
	descriptors := make([]exchange.SubmissionDescriptor, 0, len(creds))
	for i, c := range creds {
		id := c.ID
		if n := len(c.Types); n > 0 {
			id = c.Types[n-1]
		}
		descriptors = append(descriptors, exchange.SubmissionDescriptor{
			ID:     id,
			Format: string(exchange.JWTVP),
			Path:   "$",
			PathNested: &exchange.SubmissionDescriptor{
				ID:     id,
				Format: c.Format,
				Path:   fmt.Sprintf("$.verifiableCredential[%d]", i),
			},
		})
	}
	return exchange.PresentationSubmission{
		ID:            uuid.NewString(),
		DefinitionID:  definitionID,
		DescriptorMap: descriptors,
	}
}
