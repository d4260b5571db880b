package util

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	bearerPrefix = "Bearer "
	didPrefix    = "did"
)

// GetMethodForDID gets a DID method from a did, the second part of the did (e.g. did:test:abcd, the method is 'test')
func GetMethodForDID(did string) (string, error) {
	split := strings.Split(did, ":")
	if len(split) < 3 {
		return "", errors.New("malformed did: did has fewer than three parts")
	}
	if split[0] != didPrefix {
		return "", errors.New("malformed did: did must start with `did`")
	}
	return split[1], nil
}

// SanitizeLog prevents certain classes of injection attacks before logging
// https://codeql.github.com/codeql-query-help/go/go-log-injection/
func SanitizeLog(log string) string {
	escapedLog := strings.ReplaceAll(log, "\n", "")
	return strings.ReplaceAll(escapedLog, "\r", "")
}

// Is2xxResponse returns true if the given status code is a 2xx response
func Is2xxResponse(statusCode int) bool {
	return statusCode/100 == 2
}

// IsRedirect returns true for the 3xx codes that carry a Location header
func IsRedirect(statusCode int) bool {
	switch statusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errors.New("authorization header is not a bearer token")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("bearer token is empty")
	}
	return token, nil
}

// RandomNonce returns a random 128-bit value in its canonical uuid form
func RandomNonce() string {
	return uuid.NewString()
}

// URN builds a urn-prefixed identifier, e.g. urn:transaction:1234
func URN(parts ...string) string {
	return "urn:" + strings.Join(parts, ":")
}
