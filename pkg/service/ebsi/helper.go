package ebsi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"

	"github.com/pkg/errors"

	"github.com/tbd54566975/wallet-service/pkg/service/framework"
)

const (
	// CodeVerifierLength is within the 43 to 128 characters RFC 7636 allows
	CodeVerifierLength = 64

	codeVerifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
)

// ResponseFlow is the way an authorization server asks the wallet to authenticate during the code flow
type ResponseFlow int

const (
	IDTokenFlow ResponseFlow = iota
	VPTokenFlow
)

func (f ResponseFlow) String() string {
	switch f {
	case IDTokenFlow:
		return "id_token"
	case VPTokenFlow:
		return "vp_token"
	}
	return "unknown"
}

// DispatchResponseType maps the response_type of an authorization request to its flow. Anything but id_token and
// vp_token is an UnsupportedResponseType error.
func DispatchResponseType(responseType string) (ResponseFlow, error) {
	switch responseType {
	case "id_token":
		return IDTokenFlow, nil
	case "vp_token":
		return VPTokenFlow, nil
	}
	return 0, framework.NewErrorf(framework.UnsupportedResponseType, "unsupported response_type: %q", responseType)
}

// GenerateCodeVerifier returns a PKCE code verifier drawn from the unreserved characters
func GenerateCodeVerifier() (string, error) {
	max := big.NewInt(int64(len(codeVerifierCharset)))
	verifier := make([]byte, CodeVerifierLength)
	for i := range verifier {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "generating code verifier")
		}
		verifier[i] = codeVerifierCharset[n.Int64()]
	}
	return string(verifier), nil
}

// CodeChallenge is the S256 challenge of a code verifier
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
