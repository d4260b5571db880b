package keyaccess

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/pkg/errors"
)

type JWT string

func (j JWT) String() string {
	return string(j)
}

func (j JWT) Ptr() *JWT {
	return &j
}

// JWKKeyAccess signs and verifies compact JWS tokens with a single key
type JWKKeyAccess struct {
	kid     string
	alg     jwa.SignatureAlgorithm
	private jwk.Key
	public  jwk.Key
}

// NewJWKKeyAccess creates a JWKKeyAccess object from a key id and private key, able to both sign and verify.
func NewJWKKeyAccess(kid string, key gocrypto.PrivateKey) (*JWKKeyAccess, error) {
	if kid == "" {
		return nil, errors.New("kid cannot be empty")
	}
	if key == nil {
		return nil, errors.New("key cannot be nil")
	}
	key = normalizeKey(key)
	alg, err := algorithmForKey(key)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create JWK Key Access object for kid: %s", kid)
	}
	privateJWK, err := jwk.FromRaw(key)
	if err != nil {
		return nil, errors.Wrapf(err, "converting private key for kid: %s", kid)
	}
	publicJWK, err := privateJWK.PublicKey()
	if err != nil {
		return nil, errors.Wrapf(err, "deriving public key for kid: %s", kid)
	}
	return &JWKKeyAccess{kid: kid, alg: alg, private: privateJWK, public: publicJWK}, nil
}

// NewJWKKeyAccessVerifier creates a JWKKeyAccess object from a key id and public key, able to verify only.
func NewJWKKeyAccessVerifier(kid string, key gocrypto.PublicKey) (*JWKKeyAccess, error) {
	if key == nil {
		return nil, errors.New("key cannot be nil")
	}
	key = normalizeKey(key)
	alg, err := algorithmForKey(key)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create JWK Key Access verifier for kid: %s", kid)
	}
	publicJWK, err := jwk.FromRaw(key)
	if err != nil {
		return nil, errors.Wrapf(err, "converting public key for kid: %s", kid)
	}
	return &JWKKeyAccess{kid: kid, alg: alg, public: publicJWK}, nil
}

func (ka JWKKeyAccess) KeyID() string {
	return ka.kid
}

func (ka JWKKeyAccess) Algorithm() jwa.SignatureAlgorithm {
	return ka.alg
}

// PublicKeyJWK returns the public half of the key as a JWK
func (ka JWKKeyAccess) PublicKeyJWK() jwk.Key {
	return ka.public
}

// SignJSON takes an object that is either itself json or json-serializable and signs it.
func (ka JWKKeyAccess) SignJSON(data any, headers map[string]any) (*JWT, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling payload")
	}
	payload := make(map[string]any)
	if err = json.Unmarshal(jsonBytes, &payload); err != nil {
		return nil, errors.Wrap(err, "payload is not a json object")
	}
	return ka.Sign(payload, headers)
}

// Sign signs the payload as a compact JWS. The kid and alg headers are always set; the given headers are added on top.
func (ka JWKKeyAccess) Sign(payload map[string]any, headers map[string]any) (*JWT, error) {
	if ka.private == nil {
		return nil, errors.New("cannot sign with nil signer")
	}
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling payload")
	}

	hdrs := jws.NewHeaders()
	for k, v := range headers {
		if err = hdrs.Set(k, v); err != nil {
			return nil, errors.Wrapf(err, "setting header %s", k)
		}
	}
	if err = hdrs.Set(jws.KeyIDKey, ka.kid); err != nil {
		return nil, errors.Wrap(err, "setting kid header")
	}

	tokenBytes, err := jws.Sign(payloadBytes, jws.WithKey(ka.alg, ka.private, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return nil, errors.Wrap(err, "could not sign payload")
	}
	return JWT(tokenBytes).Ptr(), nil
}

// Verify checks the token signature and returns its payload
func (ka JWKKeyAccess) Verify(token JWT) ([]byte, error) {
	if token == "" {
		return nil, errors.New("token cannot be empty")
	}
	payload, err := jws.Verify([]byte(token), jws.WithKey(ka.alg, ka.public))
	if err != nil {
		return nil, errors.Wrap(err, "verifying token")
	}
	return payload, nil
}

// GetJWTHeaders returns the headers of a JWT token, assuming there is only one signature.
func GetJWTHeaders(token []byte) (jws.Headers, error) {
	msg, err := jws.Parse(token)
	if err != nil {
		return nil, err
	}
	if len(msg.Signatures()) != 1 {
		return nil, fmt.Errorf("expected 1 signature, got %d", len(msg.Signatures()))
	}
	return msg.Signatures()[0].ProtectedHeaders(), nil
}

func normalizeKey(key any) any {
	switch k := key.(type) {
	case ecdsa.PrivateKey:
		return &k
	case ecdsa.PublicKey:
		return &k
	}
	return key
}

func algorithmForKey(key any) (jwa.SignatureAlgorithm, error) {
	var curve elliptic.Curve
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		curve = k.Curve
	case *ecdsa.PublicKey:
		curve = k.Curve
	case ed25519.PrivateKey, ed25519.PublicKey:
		return jwa.EdDSA, nil
	default:
		return "", fmt.Errorf("unsupported key type: %T", key)
	}
	switch curve {
	case elliptic.P256():
		return jwa.ES256, nil
	case elliptic.P384():
		return jwa.ES384, nil
	case elliptic.P521():
		return jwa.ES512, nil
	}
	return "", fmt.Errorf("unsupported curve: %s", curve.Params().Name)
}
