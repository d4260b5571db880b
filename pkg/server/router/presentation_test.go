package router

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/credential"
	"github.com/tbd54566975/wallet-service/pkg/service/entity"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/service/presentation"
)

func TestPresentationRouter(t *testing.T) {
	t.Run("Nil Service", func(tt *testing.T) {
		presRouter, err := NewPresentationRouter(nil)
		assert.Error(tt, err)
		assert.Empty(tt, presRouter)
		assert.Contains(tt, err.Error(), "service cannot be nil")
	})

	t.Run("Bad Service", func(tt *testing.T) {
		presRouter, err := NewPresentationRouter(&testService{})
		assert.Error(tt, err)
		assert.Empty(tt, presRouter)
		assert.Contains(tt, err.Error(), "could not create presentation router with service type: test")
	})
}

func TestPresentationAPI(t *testing.T) {
	wallet := testWalletService(t)
	presRouter, err := NewPresentationRouter(wallet.Presentation)
	require.NoError(t, err)
	token := userToken(t, testUser)

	storeCredential(t, wallet, "urn:uuid:1", entity.StatusValid, "VerifiableCredential", "LEARCredentialEmployee")
	storeCredential(t, wallet, "urn:uuid:2", entity.StatusIssued, "VerifiableCredential", "LEARCredentialEmployee")

	t.Run("resolve a DOME request", func(tt *testing.T) {
		qr := "openid4vp://?" + url.Values{
			"response_type": {"vp_token"},
			"scope":         {"openid dome.credentials.presentation.LEARCredentialEmployee"},
			"redirect_uri":  {"https://verifier.dome-marketplace.eu/response"},
			"client_id":     {"did:web:dome-marketplace.eu"},
			"state":         {"s1"},
			"nonce":         {"n1"},
		}.Encode()
		req := newRequest(tt, http.MethodPost, "/v1/presentations/requests", token, ResolveAuthorizationRequest{QRContent: qr})
		w := serve(http.MethodPost, "/v1/presentations/requests", presRouter.ResolveAuthorizationRequest, req)
		require.Equal(tt, http.StatusOK, w.Code)

		var resp presentation.VcSelectorRequest
		decodeBody(tt, w, &resp)
		assert.Equal(tt, "https://verifier.dome-marketplace.eu/response", resp.RedirectURI)
		assert.Equal(tt, "s1", resp.State)
		require.Len(tt, resp.SelectableVCList, 1)
		assert.Equal(tt, "urn:uuid:1", resp.SelectableVCList[0].ID)
	})

	t.Run("resolve a common request without a request object", func(tt *testing.T) {
		qr := "openid4vp://?" + url.Values{"redirect_uri": {"https://verifier.example/response"}}.Encode()
		req := newRequest(tt, http.MethodPost, "/v1/presentations/requests", token, ResolveAuthorizationRequest{QRContent: qr})
		w := serve(http.MethodPost, "/v1/presentations/requests", presRouter.ResolveAuthorizationRequest, req)
		assert.Equal(tt, http.StatusBadRequest, w.Code)

		var resp framework.ErrorResponse
		decodeBody(tt, w, &resp)
		assert.Equal(tt, string(svcframework.Deserialization), resp.Title)
	})

	t.Run("submit a common response", func(tt *testing.T) {
		var received url.Values
		verifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(tt, r.ParseForm())
			received = r.PostForm
			http.Redirect(w, r, "https://verifier.example/done", http.StatusFound)
		}))
		defer verifier.Close()

		selection := presentation.VcSelectorResponse{
			RedirectURI:    verifier.URL + "/response",
			State:          "s1",
			SelectedVCList: []credential.CredentialsBasicInfo{{ID: "urn:uuid:1"}},
		}
		req := newRequest(tt, http.MethodPost, "/v1/presentations/responses", token, selection)
		w := serve(http.MethodPost, "/v1/presentations/responses", presRouter.SubmitAuthorizationResponse, req)
		require.Equal(tt, http.StatusOK, w.Code)

		var resp presentation.SubmitResponse
		decodeBody(tt, w, &resp)
		assert.Equal(tt, "https://verifier.example/done", resp.RedirectURI)
		assert.Equal(tt, "s1", received.Get("state"))
		assert.NotEmpty(tt, received.Get("vp_token"))
		assert.NotEmpty(tt, received.Get("presentation_submission"))
	})

	t.Run("a deferred credential is not available", func(tt *testing.T) {
		selection := presentation.VcSelectorResponse{
			RedirectURI:    "https://verifier.example/response",
			State:          "s1",
			SelectedVCList: []credential.CredentialsBasicInfo{{ID: "urn:uuid:2"}},
		}
		req := newRequest(tt, http.MethodPost, "/v1/presentations/responses", token, selection)
		w := serve(http.MethodPost, "/v1/presentations/responses", presRouter.SubmitAuthorizationResponse, req)
		assert.Equal(tt, http.StatusAccepted, w.Code)

		var resp framework.ErrorResponse
		decodeBody(tt, w, &resp)
		assert.Equal(tt, string(svcframework.CredentialNotAvailable), resp.Title)
	})

	t.Run("nothing selected", func(tt *testing.T) {
		selection := presentation.VcSelectorResponse{RedirectURI: "https://verifier.example/response"}
		req := newRequest(tt, http.MethodPost, "/v1/presentations/responses", token, selection)
		w := serve(http.MethodPost, "/v1/presentations/responses", presRouter.SubmitAuthorizationResponse, req)
		assert.Equal(tt, http.StatusBadRequest, w.Code)
	})

	t.Run("turnstile presentation", func(tt *testing.T) {
		req := newRequest(tt, http.MethodPost, "/v1/presentations/turnstile", token, TurnstilePresentationRequest{CredentialID: "urn:uuid:1"})
		w := serve(http.MethodPost, "/v1/presentations/turnstile", presRouter.BuildTurnstilePresentation, req)
		require.Equal(tt, http.StatusOK, w.Code)

		var resp TurnstilePresentationResponse
		decodeBody(tt, w, &resp)
		encoded, err := base64.RawURLEncoding.DecodeString(resp.Presentation)
		require.NoError(tt, err)

		var decoded map[string]any
		require.NoError(tt, cbor.Unmarshal(encoded, &decoded))
		assert.NotEmpty(tt, decoded["vp"])
		claims, ok := decoded["claims"].(map[any]any)
		require.True(tt, ok)
		assert.Equal(tt, "turnstile", claims["aud"])
	})

	t.Run("turnstile presentation of an unknown credential", func(tt *testing.T) {
		req := newRequest(tt, http.MethodPost, "/v1/presentations/turnstile", token, TurnstilePresentationRequest{CredentialID: "urn:uuid:missing"})
		w := serve(http.MethodPost, "/v1/presentations/turnstile", presRouter.BuildTurnstilePresentation, req)
		assert.Equal(tt, http.StatusNotFound, w.Code)
	})
}
