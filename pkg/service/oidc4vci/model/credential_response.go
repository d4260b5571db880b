package model

// CredentialResponse represents a response from a Credential Issuer to a Credential Request.
type CredentialResponse struct {
	// format: JSON string denoting the format of the issued Credential.
	Format string `json:"format,omitempty"`

	// credential: Contains issued Credential. MUST be present when transaction_id is not returned.
	// MAY be a JSON string or a JSON object, depending on the Credential format.
	Credential Credential `json:"credential,omitempty"`

	// transaction_id: identifies a Deferred Issuance transaction. Present if and only if the credential is not
	// issued yet.
	TransactionID string `json:"transaction_id,omitempty"`

	// acceptance_token: the pre-final name of transaction_id, still sent by some issuers.
	AcceptanceToken string `json:"acceptance_token,omitempty"`

	// c_nonce: JSON string containing a nonce to be used to create a proof of possession of key material when requesting a Credential.
	// When received, the Wallet MUST use this nonce value for its subsequent credential requests until the Credential Issuer provides a fresh nonce.
	CNonce string `json:"c_nonce,omitempty"`

	// c_nonce_expires_in: JSON integer denoting the lifetime in seconds of the c_nonce.
	CNonceExpiresIn int `json:"c_nonce_expires_in,omitempty"`
}

// Deferred reports whether the credential is not issued yet
func (c CredentialResponse) Deferred() bool {
	return c.PendingTransactionID() != ""
}

// PendingTransactionID is the transaction to poll for the credential, empty when the credential is final
func (c CredentialResponse) PendingTransactionID() string {
	if c.TransactionID != "" {
		return c.TransactionID
	}
	return c.AcceptanceToken
}
