package router

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/wallet-service/internal/keyaccess"
	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/issuance"
)

func TestIssuanceRouter(t *testing.T) {
	t.Run("Nil Service", func(tt *testing.T) {
		issuanceRouter, err := NewIssuanceRouter(nil)
		assert.Error(tt, err)
		assert.Empty(tt, issuanceRouter)
		assert.Contains(tt, err.Error(), "service cannot be nil")
	})

	t.Run("Bad Service", func(tt *testing.T) {
		issuanceRouter, err := NewIssuanceRouter(&testService{})
		assert.Error(tt, err)
		assert.Empty(tt, issuanceRouter)
		assert.Contains(tt, err.Error(), "could not create issuance router with service type: test")
	})
}

func TestIssueFromOfferAPI(t *testing.T) {
	wallet := testWalletService(t)
	issuanceRouter, err := NewIssuanceRouter(wallet.Issuance)
	require.NoError(t, err)
	token := userToken(t, testUser)

	t.Run("missing offer uri", func(tt *testing.T) {
		req := newRequest(tt, http.MethodPost, "/v1/issuances", token, map[string]any{"pin": "1234"})
		w := serve(http.MethodPost, "/v1/issuances", issuanceRouter.IssueFromOffer, req)
		assert.Equal(tt, http.StatusBadRequest, w.Code)

		var resp framework.ErrorResponse
		decodeBody(tt, w, &resp)
		require.Len(tt, resp.Fields, 1)
		assert.Equal(tt, "credentialOfferUri", resp.Fields[0].Field)
	})

	t.Run("unknown fields", func(tt *testing.T) {
		req := newRequest(tt, http.MethodPost, "/v1/issuances", token, map[string]any{"credentialOfferUri": "openid-credential-offer://", "bad": true})
		w := serve(http.MethodPost, "/v1/issuances", issuanceRouter.IssueFromOffer, req)
		assert.Equal(tt, http.StatusBadRequest, w.Code)
	})

	t.Run("offer without credential_offer or credential_offer_uri", func(tt *testing.T) {
		req := newRequest(tt, http.MethodPost, "/v1/issuances", token, IssueFromOfferRequest{CredentialOfferURI: "openid-credential-offer://?foo=bar"})
		w := serve(http.MethodPost, "/v1/issuances", issuanceRouter.IssueFromOffer, req)
		assert.Equal(tt, http.StatusBadRequest, w.Code)

		var resp framework.ErrorResponse
		decodeBody(tt, w, &resp)
		assert.Equal(tt, string(svcframework.Deserialization), resp.Title)
		assert.Equal(tt, "/v1/issuances", resp.Path)
	})

	t.Run("no bearer", func(tt *testing.T) {
		req := newRequest(tt, http.MethodPost, "/v1/issuances", "", IssueFromOfferRequest{CredentialOfferURI: "openid-credential-offer://?foo=bar"})
		w := serve(http.MethodPost, "/v1/issuances", issuanceRouter.IssueFromOffer, req)
		assert.Equal(tt, http.StatusUnauthorized, w.Code)
	})
}

func TestCompleteDeferredAPI(t *testing.T) {
	wallet := testWalletService(t)
	issuanceRouter, err := NewIssuanceRouter(wallet.Issuance)
	require.NoError(t, err)
	token := userToken(t, testUser)
	route := "/v1/credentials/:id/deferred"

	var replies []map[string]any
	var received []map[string]any
	deferredEndpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		received = append(received, body)

		reply := replies[0]
		replies = replies[1:]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	defer deferredEndpoint.Close()

	storeCredential(t, wallet, "urn:uuid:deferred", entity.StatusIssued, "VerifiableCredential", "VerifiableDiploma")
	tx := entity.NewTransactionEntity("urn:transaction:1", "urn:uuid:deferred", entity.TransactionData{
		TransactionID:    "tx-1",
		AccessToken:      "issuer-token",
		DeferredEndpoint: deferredEndpoint.URL,
	})
	require.NoError(t, wallet.Entity.PostEntity(context.Background(), tx))

	t.Run("still pending", func(tt *testing.T) {
		replies = append(replies, map[string]any{"transaction_id": "tx-2"})
		req := newRequest(tt, http.MethodPost, "/v1/credentials/urn:uuid:deferred/deferred", token, nil)
		w := serve(http.MethodPost, route, issuanceRouter.CompleteDeferred, req)
		assert.Equal(tt, http.StatusAccepted, w.Code)

		var resp CompleteDeferredResponse
		decodeBody(tt, w, &resp)
		assert.Equal(tt, issuance.DeferredPending, resp.State)
		assert.Equal(tt, entity.StatusIssued, resp.Credential.CredentialStatus)
		require.Len(tt, received, 1)
		assert.Equal(tt, "tx-1", received[0]["transaction_id"])
	})

	t.Run("ready", func(tt *testing.T) {
		replies = append(replies, map[string]any{"format": "jwt_vc", "credential": signedDiploma(tt)})
		req := newRequest(tt, http.MethodPost, "/v1/credentials/urn:uuid:deferred/deferred", token, nil)
		w := serve(http.MethodPost, route, issuanceRouter.CompleteDeferred, req)
		assert.Equal(tt, http.StatusOK, w.Code)

		var resp CompleteDeferredResponse
		decodeBody(tt, w, &resp)
		assert.Equal(tt, issuance.DeferredReady, resp.State)
		assert.Equal(tt, "urn:uuid:deferred", resp.Credential.ID)
		assert.Equal(tt, entity.StatusValid, resp.Credential.CredentialStatus)
		require.Len(tt, received, 2)
		assert.Equal(tt, "tx-2", received[1]["transaction_id"])
	})

	t.Run("nothing left to complete", func(tt *testing.T) {
		req := newRequest(tt, http.MethodPost, "/v1/credentials/urn:uuid:deferred/deferred", token, nil)
		w := serve(http.MethodPost, route, issuanceRouter.CompleteDeferred, req)
		assert.Equal(tt, http.StatusNotFound, w.Code)
	})

	t.Run("unknown credential", func(tt *testing.T) {
		req := newRequest(tt, http.MethodPost, "/v1/credentials/urn:uuid:missing/deferred", token, nil)
		w := serve(http.MethodPost, route, issuanceRouter.CompleteDeferred, req)
		assert.Equal(tt, http.StatusNotFound, w.Code)

		var resp framework.ErrorResponse
		decodeBody(tt, w, &resp)
		assert.Equal(tt, string(svcframework.NotFound), resp.Title)
	})
}

func signedDiploma(t *testing.T) string {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ka, err := keyaccess.NewJWKKeyAccess("https://issuer.example#key-1", key)
	require.NoError(t, err)
	token, err := ka.Sign(map[string]any{
		"iss": "https://issuer.example",
		"jti": "urn:uuid:issued-diploma",
		"vc": map[string]any{
			"@context":          []string{"https://www.w3.org/2018/credentials/v1"},
			"type":              []string{"VerifiableCredential", "VerifiableDiploma"},
			"credentialSubject": map[string]any{"name": "Alice"},
		},
	}, nil)
	require.NoError(t, err)
	return token.String()
}
