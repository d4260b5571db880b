package model

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Credential is the raw credential of a credential response: a JSON string for signed formats such as jwt_vc, or a
// JSON object for an unsigned credential.
type Credential []byte

// NewSignedCredential wraps a signed credential string
func NewSignedCredential(signed string) Credential {
	b, _ := json.Marshal(signed)
	return b
}

func (c *Credential) UnmarshalJSON(b []byte) error {
	*c = append((*c)[:0], b...)
	return nil
}

func (c Credential) MarshalJSON() ([]byte, error) {
	if c.IsEmpty() {
		return []byte("null"), nil
	}
	return c, nil
}

func (c Credential) IsEmpty() bool {
	trimmed := bytes.TrimSpace(c)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Signed returns the credential when it is a JSON string
func (c Credential) Signed() (string, bool) {
	var signed string
	if err := json.Unmarshal(c, &signed); err != nil || signed == "" {
		return "", false
	}
	return signed, true
}

// Object returns the credential when it is a JSON object
func (c Credential) Object() (map[string]any, bool) {
	var object map[string]any
	if err := json.Unmarshal(c, &object); err != nil || object == nil {
		return nil, false
	}
	return object, true
}
