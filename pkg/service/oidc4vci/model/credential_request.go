package model

const (
	ProofTypeJWT = "jwt"
)

// CredentialRequest represents a request for a credential.
type CredentialRequest struct {
	// Format is the format of the credential to be issued. DOME issuers expect it next to CredentialConfigurationID.
	Format string `json:"format,omitempty"`

	// Types is a list of credential types. The credential issued by the issuer MUST at least contain the
	// values listed in this claim.
	Types []string `json:"types,omitempty"`

	// CredentialConfigurationID references an entry of credential_configurations_supported in the issuer metadata.
	CredentialConfigurationID string `json:"credential_configuration_id,omitempty"`

	// Proof is a proof of possession of the key material the issued credential shall be bound to.
	Proof *ProofParameter `json:"proof,omitempty"`
}

// JWTProof objects contain a single jwt element with a JWS [RFC7515] as proof of possession. The JWT contains
//
// in the JOSE Header,
//
// - typ: openid4vci-proof+jwt, which explicitly types the proof JWT as recommended in Section 3.11 of [RFC8725].
// - alg: a digital signature algorithm identifier, never none or a symmetric algorithm.
// - kid: the DID URL of the key the credential shall be bound to.
//
// in the JWT body,
//
// - iss: the client_id of the wallet, its DID.
// - aud: the Credential Issuer URL of the Credential Issuer.
// - iat: the time at which the proof was issued.
// - nonce: a c_nonce provided by the Credential Issuer.
type JWTProof struct {
	JWT string `json:"jwt"`
}

// ProofParameter represents a proof object.
type ProofParameter struct {
	// ProofType is the concrete proof type. Currently, the only possible value is "jwt".
	ProofType string `json:"proof_type"`

	// Present when proof_type == "jwt".
	*JWTProof
}

// NewJWTProof wraps a signed proof JWT into a proof parameter
func NewJWTProof(jwt string) *ProofParameter {
	return &ProofParameter{ProofType: ProofTypeJWT, JWTProof: &JWTProof{JWT: jwt}}
}

// DeferredCredentialRequest polls the deferred credential endpoint for a credential that was not ready
type DeferredCredentialRequest struct {
	TransactionID string `json:"transaction_id"`
}
