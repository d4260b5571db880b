package router

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/internal/keyaccess"
	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	"github.com/tbd54566975/wallet-service/pkg/service"
	"github.com/tbd54566975/wallet-service/pkg/service/common"
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
)

const testUser = "alice"

// testService is a service that is never ready
type testService struct{}

func (s *testService) Type() svcframework.Type {
	return "test"
}

func (s *testService) Status() svcframework.Status {
	return svcframework.Status{Status: svcframework.StatusNotReady, Message: "not ready"}
}

func testWalletService(t *testing.T) *service.WalletService {
	cfg := config.ServicesConfig{
		StorageProvider: "bolt",
		StorageOptions:  config.StorageOptionsConfig{BoltFilePath: filepath.Join(t.TempDir(), "wallet.db")},
		SecretConfig:    config.SecretServiceConfig{Provider: "local", ServiceKeyPassword: "test-password"},
		PresentationConfig: config.PresentationServiceConfig{
			VerifierID:             "vc-verifier",
			DOMEVerifierID:         "did:web:dome-marketplace.eu",
			TurnstileID:            "turnstile",
			DOMEMarketplacePattern: config.DefaultDOMEMarketplaceRegexp,
			Lifetime:               5 * time.Minute,
		},
	}
	wallet, err := service.InstantiateWalletService(context.Background(), cfg, common.NewHTTPClient(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = wallet.Close()
	})
	return wallet
}

// userToken is a bearer token of the given wallet user
func userToken(t *testing.T, sub string) string {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ka, err := keyaccess.NewJWKKeyAccess("https://keycloak.example#key-1", key)
	require.NoError(t, err)
	token, err := ka.Sign(map[string]any{"sub": sub, "iss": "https://keycloak.example"}, nil)
	require.NoError(t, err)
	return token.String()
}

// storeCredential stores a credential of testUser held by a fresh did:key
func storeCredential(t *testing.T, wallet *service.WalletService, id string, status entity.CredentialStatus, types ...string) string {
	ctx := context.Background()
	holder, err := wallet.DID.CreateDIDKey(ctx)
	require.NoError(t, err)
	_, err = wallet.Entity.EnsureEntity(ctx, entity.NewUserEntity(testUser, time.Now()))
	require.NoError(t, err)

	c := entity.CredentialEntity{
		ID:              id,
		Type:            entity.CredentialEntityType,
		Status:          entity.NewProperty(status),
		CredentialTypes: entity.NewProperty(types),
		JSONCredential: entity.NewProperty(map[string]any{
			"id":                id,
			"type":              types,
			"credentialSubject": map[string]any{"id": holder, "name": "Alice"},
		}),
		BelongsTo: entity.NewRelationship(entity.UserEntityID(testUser)),
	}
	if status == entity.StatusValid {
		jwtVC := entity.NewProperty("eyJhbGciOiJFUzI1NiJ9.eyJqdGkiOiIxIn0.c2ln")
		c.JWTCredential = &jwtVC
	}
	require.NoError(t, wallet.Entity.PostEntity(ctx, c))
	return holder
}

// serve runs the handler behind a gin engine the way the server registers it
func serve(method, route string, handler framework.Handler, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Handle(method, route, func(c *gin.Context) {
		_ = handler(c)
	})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func newRequest(t *testing.T, method, url, token string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}
