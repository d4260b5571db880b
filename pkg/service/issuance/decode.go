package issuance

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/oidc4vci/model"
)

// registered CWT claim keys, RFC 8392
const (
	cwtSubject    = "2"
	cwtExpiration = "4"
	cwtID         = "7"
)

// issuedCredential is a credential as received from an issuer, decoded into its JSON view
type issuedCredential struct {
	ID     string
	Types  []string
	JWT    string
	CWT    string
	JSON   map[string]any
	Holder string
}

func (c issuedCredential) signed() bool {
	return c.JWT != "" || c.CWT != ""
}

// toEntity builds the stored form of the credential. Signed credentials are VALID, anything else is ISSUED.
func (c issuedCredential) toEntity(id, userID string) entity.CredentialEntity {
	status := entity.StatusIssued
	if c.signed() {
		status = entity.StatusValid
	}
	e := entity.CredentialEntity{
		ID:              id,
		Type:            entity.CredentialEntityType,
		Status:          entity.NewProperty(status),
		CredentialTypes: entity.NewProperty(c.Types),
		JSONCredential:  entity.NewProperty(c.JSON),
		BelongsTo:       entity.NewRelationship(entity.UserEntityID(userID)),
	}
	if c.JWT != "" {
		jwtVC := entity.NewProperty(c.JWT)
		e.JWTCredential = &jwtVC
	}
	if c.CWT != "" {
		cwtVC := entity.NewProperty(c.CWT)
		e.CWTCredential = &cwtVC
	}
	if c.Holder != "" {
		holder := entity.NewProperty(c.Holder)
		e.HolderDID = &holder
	}
	return e
}

// pendingCredential is the placeholder stored while issuance is deferred
func pendingCredential(holder string, types []string) issuedCredential {
	return issuedCredential{
		ID:    newCredentialID(),
		Types: types,
		JSON: map[string]any{
			"type":              types,
			"credentialSubject": map[string]any{"id": holder},
		},
		Holder: holder,
	}
}

func newCredentialID() string {
	return "urn:uuid:" + uuid.NewString()
}

// decodeCredential decodes the credential of a credential response. The holder fills the subject id when the
// credential does not name one, the requested types stand in when it declares none.
func decodeCredential(format string, raw model.Credential, holder string, requested []string) (*issuedCredential, error) {
	var decoded *issuedCredential
	var err error
	if signed, ok := raw.Signed(); ok {
		if isCWT(format) {
			decoded, err = decodeCWT(signed)
		} else {
			decoded, err = decodeJWT(signed)
		}
	} else if object, ok := raw.Object(); ok {
		decoded = &issuedCredential{JSON: object}
	} else {
		return nil, framework.NewError(framework.Deserialization, "credential response carries no credential")
	}
	if err != nil {
		return nil, err
	}

	if decoded.ID == "" {
		decoded.ID, _ = decoded.JSON["id"].(string)
	}
	if decoded.ID == "" {
		decoded.ID = newCredentialID()
	}
	if types := stringList(decoded.JSON["type"]); len(types) > 0 {
		decoded.Types = types
	} else {
		decoded.Types = requested
	}
	ensureSubject(decoded.JSON, holder)
	decoded.Holder = holder
	return decoded, nil
}

func isCWT(format string) bool {
	return strings.HasPrefix(format, "cwt")
}

func decodeJWT(token string) (*issuedCredential, error) {
	_, parsed, err := util.ParseJWT(token)
	if err != nil {
		return nil, framework.WrapError(err, framework.MalformedJWT, "issued credential is not a JWT")
	}
	view, ok := mapOf(vcClaim(parsed.PrivateClaims()))
	if !ok {
		view = parsed.PrivateClaims()
	}
	if view == nil {
		view = make(map[string]any)
	}
	if parsed.Subject() != "" {
		ensureSubject(view, parsed.Subject())
	}
	if exp := parsed.Expiration(); !exp.IsZero() {
		setExpiration(view, exp)
	}
	id, _ := view["id"].(string)
	if id == "" {
		id = parsed.JwtID()
	}
	return &issuedCredential{ID: id, JWT: token, JSON: view}, nil
}

type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

// decodeCWT reads the claims of a base64 encoded COSE_Sign1 CWT. The signature is not checked.
func decodeCWT(encoded string) (*issuedCredential, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, framework.WrapError(err, framework.Deserialization, "issued CWT is not base64")
	}
	var message coseSign1
	if err = cbor.Unmarshal(raw, &message); err != nil {
		return nil, framework.WrapError(err, framework.Deserialization, "issued CWT is not a COSE_Sign1 message")
	}
	var payload map[any]any
	if err = cbor.Unmarshal(message.Payload, &payload); err != nil {
		return nil, framework.WrapError(err, framework.Deserialization, "issued CWT has no claims")
	}
	claims, _ := normalize(payload).(map[string]any)

	view, ok := mapOf(vcClaim(claims))
	if !ok {
		view = claims
	}
	if view == nil {
		view = make(map[string]any)
	}
	if sub, ok := claims[cwtSubject].(string); ok {
		ensureSubject(view, sub)
	}
	if exp, ok := numeric(claims[cwtExpiration]); ok {
		setExpiration(view, time.Unix(exp, 0))
	}
	id, _ := view["id"].(string)
	if id == "" {
		id, _ = claims[cwtID].(string)
	}
	return &issuedCredential{ID: id, CWT: encoded, JSON: view}, nil
}

func decodeBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	var lastErr error
	for _, encoding := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		decoded, err := encoding.DecodeString(encoded)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "decoding base64")
}

// normalize turns CBOR maps into JSON-friendly maps keyed by strings
func normalize(v any) any {
	switch value := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(value))
		for k, item := range value {
			m[fmt.Sprint(k)] = normalize(item)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(value))
		for k, item := range value {
			m[k] = normalize(item)
		}
		return m
	case []any:
		items := make([]any, len(value))
		for i, item := range value {
			items[i] = normalize(item)
		}
		return items
	case cbor.Tag:
		return normalize(value.Content)
	}
	return v
}

func vcClaim(claims map[string]any) any {
	if claims == nil {
		return nil
	}
	return claims["vc"]
}

func mapOf(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

func ensureSubject(view map[string]any, id string) {
	if id == "" {
		return
	}
	raw, present := view["credentialSubject"]
	subject, ok := raw.(map[string]any)
	if !ok {
		if present {
			return
		}
		subject = make(map[string]any)
		view["credentialSubject"] = subject
	}
	if existing, _ := subject["id"].(string); existing == "" {
		subject["id"] = id
	}
}

func setExpiration(view map[string]any, exp time.Time) {
	if _, ok := view["validUntil"]; ok {
		return
	}
	if _, ok := view["expirationDate"]; ok {
		return
	}
	view["expirationDate"] = exp.UTC().Format(time.RFC3339)
}

func stringList(v any) []string {
	switch value := v.(type) {
	case string:
		return []string{value}
	case []string:
		return value
	case []any:
		list := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}
		return list
	}
	return nil
}

func numeric(v any) (int64, bool) {
	switch value := v.(type) {
	case uint64:
		return int64(value), true
	case int64:
		return value, true
	case float64:
		return int64(value), true
	}
	return 0, false
}
