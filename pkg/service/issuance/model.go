package issuance

import (
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	"github.com/tbd54566975/wallet-service/pkg/service/oidc4vci/model"
)

type IssueRequest struct {
	// AccessToken is the wallet user's bearer token, its subject identifies the user
	AccessToken string `json:"-"`
	OfferURI    string `json:"credentialOfferUri" validate:"required"`
	Pin         string `json:"pin,omitempty"`
}

type IssueResponse struct {
	CredentialIDs []string `json:"credentialIds"`
}

// Flow is the authorization branch an offer is redeemed through
type Flow int

const (
	DOMEProfileFlow Flow = iota
	PreAuthorizedFlow
	AuthorizedCodeFlow
)

func (f Flow) String() string {
	switch f {
	case DOMEProfileFlow:
		return "dome_profile"
	case PreAuthorizedFlow:
		return "pre_authorized"
	case AuthorizedCodeFlow:
		return "authorized_code"
	}
	return "unknown"
}

// SelectFlow picks the branch for an offer. Offers referencing credential configurations are DOME offers, other
// offers with a pre-authorized grant are redeemed directly, anything else goes through the EBSI code flow.
func SelectFlow(offer model.CredentialOffer) Flow {
	switch {
	case offer.IsDOMEProfile():
		return DOMEProfileFlow
	case offer.Grants.PreAuthorizedCode != nil:
		return PreAuthorizedFlow
	}
	return AuthorizedCodeFlow
}

// descriptor is one credential to request from the issuer
type descriptor struct {
	Format                  string
	Types                   []string
	CredentialConfiguration string
}

func (d descriptor) request(proof string) model.CredentialRequest {
	request := model.CredentialRequest{
		Format: d.Format,
		Proof:  model.NewJWTProof(proof),
	}
	if d.CredentialConfiguration != "" {
		request.CredentialConfigurationID = d.CredentialConfiguration
	} else {
		request.Types = d.Types
	}
	return request
}

// session is what every credential request of one issuance shares
type session struct {
	UserID             string
	Holder             string
	Issuer             string
	CredentialEndpoint string
	DeferredEndpoint   string
	AccessToken        string
}

// fetchState is the accumulator of the credential fetch
type fetchState struct {
	nonce string
	ids   []string
}

type CompleteDeferredRequest struct {
	UserID       string
	CredentialID string
}

type DeferredState string

const (
	DeferredReady   DeferredState = "READY"
	DeferredPending DeferredState = "PENDING"
)

// DeferredResult is the outcome of polling a deferred credential. Credential is the stored credential, signed when
// the state is ready.
type DeferredResult struct {
	State      DeferredState           `json:"state"`
	Credential entity.CredentialEntity `json:"credential"`
}
