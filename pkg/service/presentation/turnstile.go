package presentation

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
)

type turnstilePresentation struct {
	VP     string         `cbor:"vp"`
	Claims map[string]any `cbor:"claims"`
}

// BuildTurnstilePresentation presents a single credential to the turnstile and returns the CBOR encoding of the
// signed presentation and its claims.
func (s Service) BuildTurnstilePresentation(ctx context.Context, userID, credentialID string) ([]byte, error) {
	logrus.Debugf("building turnstile presentation of: %s", credentialID)

	vp, _, err := s.present(ctx, userID, []string{credentialID}, s.config.TurnstileID, util.RandomNonce())
	if err != nil {
		return nil, err
	}
	encoded, err := cbor.Marshal(turnstilePresentation{VP: vp.JWT, Claims: vp.Claims})
	if err != nil {
		return nil, framework.WrapError(err, framework.Serialization, "could not encode turnstile presentation")
	}
	return encoded, nil
}
