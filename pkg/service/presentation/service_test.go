package presentation

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/TBD54566975/ssi-sdk/credential/exchange"
	"github.com/benbjohnson/clock"
	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/internal/keyaccess"
	"github.com/tbd54566975/wallet-service/pkg/service/common"
	"github.com/tbd54566975/wallet-service/pkg/service/credential"
	"github.com/tbd54566975/wallet-service/pkg/service/did"
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/secret"
	"github.com/tbd54566975/wallet-service/pkg/service/signing"
	"github.com/tbd54566975/wallet-service/pkg/testutil"
)

const (
	testUser      = "alice"
	verifierID    = "vc-verifier"
	domeVerifier  = "did:web:dome-marketplace.eu"
	turnstileID   = "turnstile"
	marketplaceRE = config.DefaultDOMEMarketplaceRegexp
)

type fixture struct {
	service  *Service
	entities entity.Store
	holder   string
}

func newFixture(t *testing.T, httpClient *http.Client) fixture {
	ctx := context.Background()
	db := testutil.TestDatabases[0].ServiceStorage(t)
	secrets, err := secret.NewLocalStore(ctx, config.SecretServiceConfig{ServiceKeyPassword: "test"}, db)
	require.NoError(t, err)
	dids, err := did.NewDIDService(secrets)
	require.NoError(t, err)
	signer, err := signing.NewSigningService(secrets)
	require.NoError(t, err)
	entities, err := entity.NewStorageStore(db)
	require.NoError(t, err)
	credentials, err := credential.NewCredentialService(entities)
	require.NoError(t, err)

	mockClock := clock.NewMock()
	mockClock.Set(time.Unix(1700000000, 0))
	builder := NewBuilder(signer, mockClock, 5*time.Minute)
	service, err := NewPresentationService(config.PresentationServiceConfig{
		VerifierID:             verifierID,
		DOMEVerifierID:         domeVerifier,
		TurnstileID:            turnstileID,
		DOMEMarketplacePattern: marketplaceRE,
	}, httpClient, credentials, builder)
	require.NoError(t, err)

	holder, err := dids.CreateDIDKey(ctx)
	require.NoError(t, err)
	storeCredential(t, entities, "urn:uuid:1", holder, entity.StatusValid, "VerifiableCredential", "LEARCredentialEmployee")
	storeCredential(t, entities, "urn:uuid:2", holder, entity.StatusIssued, "VerifiableCredential", "LEARCredentialEmployee")
	storeCredential(t, entities, "urn:uuid:3", holder, entity.StatusValid, "VerifiableCredential", "VerifiableId")

	return fixture{service: service, entities: entities, holder: holder}
}

func storeCredential(t *testing.T, entities entity.Store, id, holder string, status entity.CredentialStatus, types ...string) {
	c := entity.CredentialEntity{
		ID:              id,
		Type:            entity.CredentialEntityType,
		Status:          entity.NewProperty(status),
		CredentialTypes: entity.NewProperty(types),
		JSONCredential: entity.NewProperty(map[string]any{
			"id":                id,
			"credentialSubject": map[string]any{"id": holder},
		}),
		BelongsTo: entity.NewRelationship(entity.UserEntityID(testUser)),
	}
	if status == entity.StatusValid {
		jwtVC := entity.NewProperty("eyJhbGciOiJFUzI1NiJ9.eyJqdGkiOiIxIn0.c2ln")
		c.JWTCredential = &jwtVC
	}
	require.NoError(t, entities.PostEntity(context.Background(), c))
}

// verifyPresentation checks the presentation was signed by the holder and returns its claims
func verifyPresentation(t *testing.T, holder, token string) map[string]any {
	pub, err := did.PublicKeyFromDIDKey(holder)
	require.NoError(t, err)
	verifier, err := keyaccess.NewJWKKeyAccessVerifier(did.KeyID(holder), pub)
	require.NoError(t, err)
	payload, err := verifier.Verify(keyaccess.JWT(token))
	require.NoError(t, err)
	var claims map[string]any
	require.NoError(t, json.Unmarshal(payload, &claims))
	return claims
}

type testVerifier struct {
	did string
	ka  *keyaccess.JWKKeyAccess
}

func newTestVerifier(t *testing.T) testVerifier {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	verifierDID, err := did.EncodeDIDKey(&key.PublicKey)
	require.NoError(t, err)
	ka, err := keyaccess.NewJWKKeyAccess(did.KeyID(verifierDID), key)
	require.NoError(t, err)
	return testVerifier{did: verifierDID, ka: ka}
}

func (v testVerifier) request(t *testing.T, clientID string) string {
	token, err := v.ka.Sign(map[string]any{
		"iss":           v.did,
		"client_id":     clientID,
		"scope":         "openid LEARCredentialEmployee",
		"response_type": "vp_token",
		"response_mode": "direct_post",
		"state":         "s1",
		"nonce":         "n1",
		"redirect_uri":  "https://verifier.example/response",
	}, nil)
	require.NoError(t, err)
	return token.String()
}

func TestBuilder(t *testing.T) {
	f := newFixture(t, common.NewHTTPClient(time.Second))

	vp, err := f.service.builder.Build(context.Background(), BuildRequest{
		Holder:      f.holder,
		Audience:    "aud",
		Nonce:       "n1",
		Credentials: []string{"eyJ.a.b"},
	})
	require.NoError(t, err)

	claims := verifyPresentation(t, f.holder, vp.JWT)
	assert.Equal(t, f.holder, claims["iss"])
	assert.Equal(t, f.holder, claims["sub"])
	assert.Equal(t, "aud", claims["aud"])
	assert.Equal(t, "n1", claims["nonce"])
	assert.EqualValues(t, 1700000000, claims["iat"])
	assert.EqualValues(t, 1700000000, claims["nbf"])
	assert.EqualValues(t, 1700000300, claims["exp"])

	presented, ok := claims["vp"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, claims["jti"], presented["id"])
	assert.Equal(t, f.holder, presented["holder"])
	assert.Equal(t, []any{"eyJ.a.b"}, presented["verifiableCredential"])

	headers, err := keyaccess.GetJWTHeaders([]byte(vp.JWT))
	require.NoError(t, err)
	assert.Equal(t, signing.JWTType, headers.Type())

	_, err = f.service.builder.Build(context.Background(), BuildRequest{Audience: "aud"})
	assert.Error(t, err)
}

func TestDialectOf(t *testing.T) {
	f := newFixture(t, common.NewHTTPClient(time.Second))

	assert.Equal(t, DOME, f.service.DialectOf("https://verifier.dome-marketplace.eu/oid4vp/auth-response"))
	assert.Equal(t, DOME, f.service.DialectOf("openid4vp://?response_uri="+url.QueryEscape("https://dome-marketplace.eu/response")+"&scope=x"))
	assert.Equal(t, Common, f.service.DialectOf("openid4vp://?redirect_uri="+url.QueryEscape("https://verifier.example/response")))
	assert.Equal(t, Common, f.service.DialectOf("https://verifier.example/response"))
}

func TestResolveCommonRequest(t *testing.T) {
	defer gock.Off()
	httpClient := common.NewHTTPClient(time.Second)
	gock.InterceptClient(httpClient)
	f := newFixture(t, httpClient)
	ctx := context.Background()
	verifier := newTestVerifier(t)

	t.Run("request by value", func(tt *testing.T) {
		qr := "openid4vp://?request=" + url.QueryEscape(verifier.request(tt, verifier.did))
		selector, err := f.service.ResolveCommonRequest(ctx, testUser, qr)
		require.NoError(tt, err)
		assert.Equal(tt, "https://verifier.example/response", selector.RedirectURI)
		assert.Equal(tt, "s1", selector.State)
		assert.Equal(tt, "n1", selector.Nonce)
		require.Len(tt, selector.SelectableVCList, 1)
		assert.Equal(tt, "urn:uuid:1", selector.SelectableVCList[0].ID)
	})

	t.Run("request by reference", func(tt *testing.T) {
		gock.New("https://verifier.example").
			Get("/request/1").
			Reply(200).
			BodyString(verifier.request(tt, verifier.did))

		qr := "openid4vp://?request_uri=" + url.QueryEscape("https://verifier.example/request/1")
		selector, err := f.service.ResolveCommonRequest(ctx, testUser, qr)
		require.NoError(tt, err)
		assert.Len(tt, selector.SelectableVCList, 1)
	})

	t.Run("bare request object", func(tt *testing.T) {
		selector, err := f.service.ResolveCommonRequest(ctx, testUser, verifier.request(tt, verifier.did))
		require.NoError(tt, err)
		assert.Equal(tt, "s1", selector.State)
	})

	t.Run("client id must be the issuer", func(tt *testing.T) {
		qr := "openid4vp://?request=" + url.QueryEscape(verifier.request(tt, "did:key:zsomeoneelse"))
		_, err := f.service.ResolveCommonRequest(ctx, testUser, qr)
		assert.True(tt, framework.IsKind(err, framework.MalformedJWT))
	})

	t.Run("request signed by another key", func(tt *testing.T) {
		impostor := newTestVerifier(tt)
		impostor.did = verifier.did
		qr := "openid4vp://?request=" + url.QueryEscape(impostor.request(tt, verifier.did))
		_, err := f.service.ResolveCommonRequest(ctx, testUser, qr)
		assert.True(tt, framework.IsKind(err, framework.MalformedJWT))
	})

	t.Run("unreachable request uri", func(tt *testing.T) {
		gock.New("https://verifier.example").Get("/request/2").Reply(500)
		qr := "openid4vp://?request_uri=" + url.QueryEscape("https://verifier.example/request/2")
		_, err := f.service.ResolveCommonRequest(ctx, testUser, qr)
		assert.True(tt, framework.IsKind(err, framework.Communication))
	})

	t.Run("no request at all", func(tt *testing.T) {
		_, err := f.service.ResolveCommonRequest(ctx, testUser, "openid4vp://?state=1")
		assert.True(tt, framework.IsKind(err, framework.Deserialization))
	})
}

// newVerifierServer records the form of the authorization response and redirects to a done page
func newVerifierServer(t *testing.T, received *url.Values) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		*received = r.PostForm
		http.Redirect(w, r, "https://verifier.example/done", http.StatusFound)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSubmitResponses(t *testing.T) {
	f := newFixture(t, common.NewHTTPClient(5*time.Second))
	ctx := context.Background()
	var received url.Values
	server := newVerifierServer(t, &received)
	selection := VcSelectorResponse{
		RedirectURI:    server.URL + "/response",
		State:          "s1",
		Nonce:          "n1",
		SelectedVCList: []credential.CredentialsBasicInfo{{ID: "urn:uuid:1"}},
	}

	t.Run("common", func(tt *testing.T) {
		result, err := f.service.SubmitCommonResponse(ctx, testUser, selection)
		require.NoError(tt, err)
		assert.Equal(tt, "https://verifier.example/done", result.RedirectURI)

		assert.Equal(tt, "s1", received.Get("state"))
		claims := verifyPresentation(tt, f.holder, received.Get("vp_token"))
		assert.Equal(tt, verifierID, claims["aud"])
		nonce, _ := claims["nonce"].(string)
		assert.Len(tt, nonce, 36)
		assert.NotEqual(tt, "n1", nonce)

		var submission exchange.PresentationSubmission
		require.NoError(tt, json.Unmarshal([]byte(received.Get("presentation_submission")), &submission))
		require.Len(tt, submission.DescriptorMap, 1)
		assert.Equal(tt, "LEARCredentialEmployee", submission.DescriptorMap[0].ID)
		require.NotNil(tt, submission.DescriptorMap[0].PathNested)
		assert.Equal(tt, "$.verifiableCredential[0]", submission.DescriptorMap[0].PathNested.Path)
	})

	t.Run("DOME", func(tt *testing.T) {
		_, err := f.service.SubmitDOMEResponse(ctx, testUser, selection)
		require.NoError(tt, err)

		vpToken, err := base64.URLEncoding.DecodeString(received.Get("vp_token"))
		require.NoError(tt, err)
		claims := verifyPresentation(tt, f.holder, string(vpToken))
		assert.Equal(tt, domeVerifier, claims["aud"])
		assert.Equal(tt, "n1", claims["nonce"])
	})

	t.Run("deferred credentials cannot be presented", func(tt *testing.T) {
		deferred := selection
		deferred.SelectedVCList = []credential.CredentialsBasicInfo{{ID: "urn:uuid:2"}}
		_, err := f.service.SubmitCommonResponse(ctx, testUser, deferred)
		assert.True(tt, framework.IsKind(err, framework.CredentialNotAvailable))
	})

	t.Run("verifier rejects the response", func(tt *testing.T) {
		rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer rejecting.Close()
		rejected := selection
		rejected.RedirectURI = rejecting.URL
		_, err := f.service.SubmitCommonResponse(ctx, testUser, rejected)
		assert.True(tt, framework.IsKind(err, framework.Communication))
	})
}

func TestResolveDOMERequest(t *testing.T) {
	f := newFixture(t, common.NewHTTPClient(time.Second))
	requestURI := "openid4vp://?" + url.Values{
		"response_type": {"vp_token"},
		"scope":         {"openid dome.credentials.presentation.LEARCredentialEmployee"},
		"redirect_uri":  {"https://verifier.dome-marketplace.eu/response"},
		"client_id":     {domeVerifier},
		"state":         {"s2"},
		"nonce":         {"n2"},
	}.Encode()

	selector, err := f.service.ResolveDOMERequest(context.Background(), testUser, requestURI)
	require.NoError(t, err)
	assert.Equal(t, "https://verifier.dome-marketplace.eu/response", selector.RedirectURI)
	assert.Equal(t, "s2", selector.State)
	require.Len(t, selector.SelectableVCList, 1)
	assert.Equal(t, "urn:uuid:1", selector.SelectableVCList[0].ID)

	assert.Equal(t, []string{"LEARCredentialEmployee", "VerifiableId"},
		DOMEScopeTypes([]string{"dome.credentials.presentation.LEARCredentialEmployee", "VerifiableId", "trailing."}))
}

func TestBuildTurnstilePresentation(t *testing.T) {
	f := newFixture(t, common.NewHTTPClient(time.Second))
	ctx := context.Background()

	encoded, err := f.service.BuildTurnstilePresentation(ctx, testUser, "urn:uuid:3")
	require.NoError(t, err)

	var decoded turnstilePresentation
	require.NoError(t, cbor.Unmarshal(encoded, &decoded))
	claims := verifyPresentation(t, f.holder, decoded.VP)
	assert.Equal(t, turnstileID, claims["aud"])
	assert.Equal(t, turnstileID, decoded.Claims["aud"])
	assert.Equal(t, claims["jti"], decoded.Claims["jti"])

	_, err = f.service.BuildTurnstilePresentation(ctx, testUser, "urn:uuid:missing")
	assert.True(t, framework.IsKind(err, framework.NotFound))
}
