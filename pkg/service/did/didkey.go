package did

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
)

const (
	keyPrefix = "did:key:"
	// base58btc multibase prefix
	base58BTCMultiBase = 'z'
)

// jcsPublicJWK is an EC public JWK whose members are in JSON Canonicalization Scheme order
type jcsPublicJWK struct {
	Crv string `json:"crv"`
	Kty string `json:"kty"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// EncodeDIDKey builds a did:key for a P-256 key using the compressed point encoding
func EncodeDIDKey(pub *ecdsa.PublicKey) (string, error) {
	if pub == nil || pub.Curve != elliptic.P256() {
		return "", errors.New("did:key generation supports P-256 keys only")
	}
	return encode(multicodec.P256Pub, elliptic.MarshalCompressed(pub.Curve, pub.X, pub.Y)), nil
}

// EncodeEBSIDIDKey builds a did:key for the EBSI natural person profile, which embeds the canonical JWK of the key
func EncodeEBSIDIDKey(pub *ecdsa.PublicKey) (string, error) {
	if pub == nil || pub.Curve != elliptic.P256() {
		return "", errors.New("EBSI did:key generation supports P-256 keys only")
	}
	size := (pub.Curve.Params().BitSize + 7) / 8
	jcs := jcsPublicJWK{
		Crv: "P-256",
		Kty: "EC",
		X:   base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, size))),
		Y:   base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, size))),
	}
	jcsBytes, err := json.Marshal(jcs)
	if err != nil {
		return "", errors.Wrap(err, "marshalling canonical jwk")
	}
	return encode(multicodec.Jwk_jcsPub, jcsBytes), nil
}

func encode(code multicodec.Code, keyBytes []byte) string {
	prefixed := append(varint.ToUvarint(uint64(code)), keyBytes...)
	return keyPrefix + string(base58BTCMultiBase) + base58.Encode(prefixed)
}

// KeyID is the verification method id of a did:key, the DID with its method specific id as fragment
func KeyID(did string) string {
	did = stripFragment(did)
	return did + "#" + strings.TrimPrefix(did, keyPrefix)
}

func stripFragment(did string) string {
	if i := strings.IndexByte(did, '#'); i >= 0 {
		return did[:i]
	}
	return did
}

// PublicKeyFromDIDKey decodes the public key embedded in a did:key, with or without a fragment
func PublicKeyFromDIDKey(did string) (gocrypto.PublicKey, error) {
	did = stripFragment(did)
	if !strings.HasPrefix(did, keyPrefix) {
		return nil, fmt.Errorf("not a did:key: %s", did)
	}
	encoded := strings.TrimPrefix(did, keyPrefix)
	if len(encoded) == 0 || encoded[0] != base58BTCMultiBase {
		return nil, errors.New("did:key does not start with 'z'")
	}
	decoded, err := base58.Decode(encoded[1:])
	if err != nil {
		return nil, errors.Wrap(err, "did:key: invalid base58btc")
	}
	code, n, err := varint.FromUvarint(decoded)
	if err != nil {
		return nil, errors.Wrap(err, "did:key: invalid multicodec value")
	}
	keyBytes := decoded[n:]

	switch multicodec.Code(code) {
	case multicodec.P256Pub:
		if len(keyBytes) != 33 {
			return nil, errors.New("did:key: invalid public key length")
		}
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), keyBytes)
		if x == nil {
			return nil, errors.New("did:key: invalid P-256 point")
		}
		return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
	case multicodec.Ed25519Pub:
		if len(keyBytes) != ed25519.PublicKeySize {
			return nil, errors.New("did:key: invalid public key length")
		}
		return ed25519.PublicKey(keyBytes), nil
	case multicodec.Jwk_jcsPub:
		key, err := jwk.ParseKey(keyBytes)
		if err != nil {
			return nil, errors.Wrap(err, "did:key: invalid embedded jwk")
		}
		var raw any
		if err = key.Raw(&raw); err != nil {
			return nil, errors.Wrap(err, "did:key: could not read embedded jwk")
		}
		return raw, nil
	}
	return nil, fmt.Errorf("did:key: unsupported public key type: %d", code)
}
