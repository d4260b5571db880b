package util

import (
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
)

// ParseJWT parses a compact JWT without verifying or validating it and returns the jws signature and jwt claims.
// Signature checks are the responsibility of the caller.
func ParseJWT(token string) (*jws.Signature, jwt.Token, error) {
	tokenBytes := []byte(token)
	parsedJWS, err := jws.Parse(tokenBytes)
	if err != nil {
		return nil, nil, err
	}
	signatures := parsedJWS.Signatures()
	if len(signatures) != 1 {
		return nil, nil, fmt.Errorf("expected 1 signature, got %d", len(signatures))
	}
	parsedJWT, err := jwt.Parse(tokenBytes, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, nil, err
	}
	return signatures[0], parsedJWT, nil
}

// SubjectFromJWT returns the sub claim of a JWT, failing when it is absent
func SubjectFromJWT(token string) (string, error) {
	_, parsed, err := ParseJWT(token)
	if err != nil {
		return "", errors.Wrap(err, "parsing token")
	}
	if parsed.Subject() == "" {
		return "", errors.New("token has no subject")
	}
	return parsed.Subject(), nil
}

// StringClaim returns a private claim as a string, or empty when absent or of another type
func StringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
