package presentation

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/signing"
)

const (
	credentialsContext         = "https://www.w3.org/2018/credentials/v1"
	verifiablePresentationType = "VerifiablePresentation"
)

// VerifiablePresentation is the unsigned presentation carried in the vp claim
type VerifiablePresentation struct {
	Context              []string `json:"@context"`
	ID                   string   `json:"id"`
	Type                 []string `json:"type"`
	Holder               string   `json:"holder"`
	VerifiableCredential []string `json:"verifiableCredential"`
}

type BuildRequest struct {
	Holder      string
	Audience    string
	Nonce       string
	Credentials []string
}

// SignedPresentation is a presentation JWT together with the claims that were signed
type SignedPresentation struct {
	JWT    string
	Claims map[string]any
}

// Builder assembles presentations and has them signed with the holder's key
type Builder struct {
	signer   signing.Signer
	clock    clock.Clock
	lifetime time.Duration
}

func NewBuilder(signer signing.Signer, c clock.Clock, lifetime time.Duration) *Builder {
	if c == nil {
		c = clock.New()
	}
	return &Builder{signer: signer, clock: c, lifetime: lifetime}
}

func (b *Builder) Build(ctx context.Context, request BuildRequest) (*SignedPresentation, error) {
	if request.Holder == "" {
		return nil, framework.NewError(framework.Internal, "presentation has no holder")
	}
	if request.Nonce == "" {
		request.Nonce = util.RandomNonce()
	}
	id := "urn:uuid:" + uuid.NewString()
	vp := VerifiablePresentation{
		Context:              []string{credentialsContext},
		ID:                   id,
		Type:                 []string{verifiablePresentationType},
		Holder:               request.Holder,
		VerifiableCredential: request.Credentials,
	}
	if vp.VerifiableCredential == nil {
		vp.VerifiableCredential = []string{}
	}
	now := b.clock.Now()
	claims := map[string]any{
		"vp":    vp,
		"iss":   request.Holder,
		"sub":   request.Holder,
		"aud":   request.Audience,
		"nonce": request.Nonce,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   now.Add(b.lifetime).Unix(),
		"jti":   id,
	}
	token, err := b.signer.Sign(ctx, signing.SignRequest{
		DID:          request.Holder,
		Payload:      claims,
		DocumentType: signing.Presentation,
	})
	if err != nil {
		return nil, errors.Wrap(err, "signing presentation")
	}
	return &SignedPresentation{JWT: token.String(), Claims: claims}, nil
}
