package oidc4vci

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/tbd54566975/wallet-service/pkg/service/signing"
)

// ProofBuilder produces the proof of possession sent with every credential request
type ProofBuilder struct {
	signer signing.Signer
	clock  clock.Clock
}

func NewProofBuilder(signer signing.Signer, c clock.Clock) *ProofBuilder {
	if c == nil {
		c = clock.New()
	}
	return &ProofBuilder{signer: signer, clock: c}
}

// Build signs a proof binding the DID's key to the issuer and the nonce. An empty nonce is left out.
func (b *ProofBuilder) Build(ctx context.Context, nonce, issuer, did string) (string, error) {
	claims := map[string]any{
		"iss": did,
		"aud": issuer,
		"iat": b.clock.Now().Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	proof, err := b.signer.Sign(ctx, signing.SignRequest{
		DID:          did,
		Payload:      claims,
		DocumentType: signing.Proof,
	})
	if err != nil {
		return "", errors.Wrap(err, "signing proof")
	}
	return proof.String(), nil
}
