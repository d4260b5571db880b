package keyaccess

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWKKeyAccessForEachKeyType(t *testing.T) {
	testKID := "did:key:zTest#zTest"
	testData := map[string]any{"test": "data"}

	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name string
		key  any
		alg  jwa.SignatureAlgorithm
	}{
		{name: "P-256 pointer", key: p256, alg: jwa.ES256},
		{name: "P-256 value", key: *p256, alg: jwa.ES256},
		{name: "P-384", key: p384, alg: jwa.ES384},
		{name: "Ed25519", key: edKey, alg: jwa.EdDSA},
	}
	for _, test := range tests {
		t.Run(test.name, func(tt *testing.T) {
			ka, err := NewJWKKeyAccess(testKID, test.key)
			require.NoError(tt, err)
			assert.Equal(tt, test.alg, ka.Algorithm())

			token, err := ka.Sign(testData, map[string]any{"typ": "JWT"})
			require.NoError(tt, err)

			payload, err := ka.Verify(*token)
			assert.NoError(tt, err)
			var got map[string]any
			require.NoError(tt, json.Unmarshal(payload, &got))
			assert.Equal(tt, testData, got)

			headers, err := GetJWTHeaders([]byte(token.String()))
			assert.NoError(tt, err)
			assert.Equal(tt, testKID, headers.KeyID())
			assert.Equal(tt, "JWT", headers.Type())
			assert.Equal(tt, test.alg, headers.Algorithm())
		})
	}
}

func TestJWKKeyAccessVerifier(t *testing.T) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := NewJWKKeyAccess("kid", privKey)
	require.NoError(t, err)

	token, err := signer.SignJSON(struct {
		Nonce string `json:"nonce"`
	}{Nonce: "n-0S6_WzA2Mj"}, nil)
	require.NoError(t, err)

	verifier, err := NewJWKKeyAccessVerifier("kid", privKey.Public())
	require.NoError(t, err)
	_, err = verifier.Verify(*token)
	assert.NoError(t, err)

	_, err = verifier.Sign(map[string]any{"a": "b"}, nil)
	assert.ErrorContains(t, err, "nil signer")

	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	otherVerifier, err := NewJWKKeyAccessVerifier("kid", &otherKey.PublicKey)
	require.NoError(t, err)
	_, err = otherVerifier.Verify(*token)
	assert.Error(t, err)
}

func TestJWKKeyAccessBadInput(t *testing.T) {
	_, err := NewJWKKeyAccess("", nil)
	assert.ErrorContains(t, err, "kid cannot be empty")

	_, err = NewJWKKeyAccess("kid", nil)
	assert.ErrorContains(t, err, "key cannot be nil")

	_, err = NewJWKKeyAccess("kid", "not-a-key")
	assert.ErrorContains(t, err, "unsupported key type")
}
