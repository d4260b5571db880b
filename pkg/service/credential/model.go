package credential

import (
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
)

// CredentialsBasicInfo is the summary of a stored credential shown to the user when selecting what to present
type CredentialsBasicInfo struct {
	ID                string                  `json:"id"`
	VCType            []string                `json:"vcType"`
	CredentialStatus  entity.CredentialStatus `json:"credentialStatus"`
	AvailableFormats  []string                `json:"availableFormats"`
	CredentialSubject map[string]any          `json:"credentialSubject,omitempty"`
	ValidUntil        string                  `json:"validUntil,omitempty"`
}

// NewBasicInfo summarizes a credential entity from its JSON view
func NewBasicInfo(c entity.CredentialEntity) CredentialsBasicInfo {
	info := CredentialsBasicInfo{
		ID:               c.ID,
		VCType:           c.CredentialTypes.Value,
		CredentialStatus: c.Status.Value,
		AvailableFormats: c.AvailableFormats(),
	}
	vc := c.JSONCredential.Value
	if subject, ok := vc["credentialSubject"].(map[string]any); ok {
		info.CredentialSubject = subject
	}
	for _, claim := range []string{"validUntil", "expirationDate"} {
		if until, ok := vc[claim].(string); ok && until != "" {
			info.ValidUntil = until
			break
		}
	}
	return info
}

type ListCredentialsRequest struct {
	UserID string
	// Type restricts the listing to credentials declaring it, when set
	Type string
}

type ListCredentialsResponse struct {
	Credentials []CredentialsBasicInfo
}

type GetCredentialRequest struct {
	UserID string
	ID     string
}

type GetCredentialResponse struct {
	Credential entity.CredentialEntity
}

type DeleteCredentialRequest struct {
	UserID string
	ID     string
}

// SignedCredential is a final credential ready to be embedded in a presentation
type SignedCredential struct {
	ID     string
	Format string
	Value  string
	Types  []string
	Holder string
}
