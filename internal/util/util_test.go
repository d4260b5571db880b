package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMethodForDID(t *testing.T) {
	method, err := GetMethodForDID("did:key:z6Mkabc")
	assert.NoError(t, err)
	assert.Equal(t, "key", method)

	_, err = GetMethodForDID("did:key")
	assert.ErrorContains(t, err, "fewer than three parts")

	_, err = GetMethodForDID("dud:key:abc")
	assert.ErrorContains(t, err, "must start with")
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def.ghi")
	assert.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = BearerToken("Basic Zm9vOmJhcg==")
	assert.Error(t, err)

	_, err = BearerToken("Bearer   ")
	assert.Error(t, err)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, Is2xxResponse(http.StatusAccepted))
	assert.False(t, Is2xxResponse(http.StatusFound))
	assert.True(t, IsRedirect(http.StatusFound))
	assert.True(t, IsRedirect(http.StatusSeeOther))
	assert.False(t, IsRedirect(http.StatusNotModified))
}

func TestSanitizeLog(t *testing.T) {
	assert.Equal(t, "ab", SanitizeLog("a\r\nb"))
}

func TestURNAndNonce(t *testing.T) {
	assert.Equal(t, "urn:transaction:123", URN("transaction", "123"))
	assert.Len(t, RandomNonce(), 36)
	assert.NotEqual(t, RandomNonce(), RandomNonce())
}

func TestParseJWT(t *testing.T) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tok, err := jwt.NewBuilder().Subject("user-1").Claim("scope", "openid").Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256, privKey))
	require.NoError(t, err)

	t.Run("subject and claims", func(tt *testing.T) {
		sig, parsed, err := ParseJWT(string(signed))
		assert.NoError(tt, err)
		assert.Equal(tt, jwa.ES256, sig.ProtectedHeaders().Algorithm())
		assert.Equal(tt, "openid", StringClaim(parsed, "scope"))
		assert.Empty(tt, StringClaim(parsed, "missing"))

		sub, err := SubjectFromJWT(string(signed))
		assert.NoError(tt, err)
		assert.Equal(tt, "user-1", sub)
	})

	t.Run("no subject", func(tt *testing.T) {
		noSub, err := jwt.NewBuilder().Issuer("iss").Build()
		require.NoError(tt, err)
		signedNoSub, err := jwt.Sign(noSub, jwt.WithKey(jwa.ES256, privKey))
		require.NoError(tt, err)
		_, err = SubjectFromJWT(string(signedNoSub))
		assert.ErrorContains(tt, err, "no subject")
	})

	t.Run("garbage", func(tt *testing.T) {
		_, _, err := ParseJWT("not-a-jwt")
		assert.Error(tt, err)
	})
}
