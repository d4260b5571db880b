package framework

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
)

func respondWith(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/credentials/urn:uuid:1", nil)
	_ = RespondError(c, err)
	return w
}

func TestRespondError(t *testing.T) {
	kinds := map[svcframework.Kind]int{
		svcframework.Communication:           http.StatusBadGateway,
		svcframework.Deserialization:         http.StatusBadRequest,
		svcframework.Serialization:           http.StatusInternalServerError,
		svcframework.MalformedJWT:            http.StatusBadRequest,
		svcframework.NotFound:                http.StatusNotFound,
		svcframework.InvalidPin:              http.StatusUnauthorized,
		svcframework.UnsupportedResponseType: http.StatusBadRequest,
		svcframework.CredentialNotAvailable:  http.StatusAccepted,
		svcframework.Conflict:                http.StatusConflict,
		svcframework.Internal:                http.StatusInternalServerError,
	}
	for kind, status := range kinds {
		t.Run(string(kind), func(tt *testing.T) {
			cause := svcframework.WrapError(errors.New("secret detail"), kind, "safe message")
			w := respondWith(errors.Wrap(cause, "outer context"))
			assert.Equal(tt, status, w.Code)

			var resp ErrorResponse
			require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(tt, string(kind), resp.Title)
			assert.Equal(tt, "safe message", resp.Message)
			assert.Equal(tt, "/v1/credentials/urn:uuid:1", resp.Path)
			assert.NotContains(tt, w.Body.String(), "secret detail")
		})
	}

	t.Run("safe error", func(tt *testing.T) {
		w := respondWith(NewRequestErrorMsg("bad input", http.StatusBadRequest))
		assert.Equal(tt, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(tt, "bad input", resp.Message)
		assert.Equal(tt, http.StatusText(http.StatusBadRequest), resp.Title)
	})

	t.Run("unclassified error", func(tt *testing.T) {
		w := respondWith(errors.New("database password is hunter2"))
		assert.Equal(tt, http.StatusInternalServerError, w.Code)
		assert.NotContains(tt, w.Body.String(), "hunter2")

		var resp ErrorResponse
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(tt, string(svcframework.Internal), resp.Title)
	})

	t.Run("unknown kind", func(tt *testing.T) {
		assert.Equal(tt, http.StatusInternalServerError, StatusForKind("SomethingElse"))
	})
}

func TestLoggingRespondErrWithMsg(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/issuances", nil)

	err := LoggingRespondErrWithMsg(c, errors.New("boom"), "could not issue", http.StatusInternalServerError)
	assert.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "could not issue", resp.Message)
	assert.Equal(t, "/v1/issuances", resp.Path)
}

type testRequest struct {
	OfferURI string `json:"credentialOfferUri" validate:"required"`
	Pin      string `json:"pin,omitempty"`
}

func TestDecode(t *testing.T) {
	t.Run("valid", func(tt *testing.T) {
		var request testRequest
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"credentialOfferUri":"openid-credential-offer://"}`))
		require.NoError(tt, Decode(r, &request))
		assert.Equal(tt, "openid-credential-offer://", request.OfferURI)
	})

	t.Run("missing required field", func(tt *testing.T) {
		var request testRequest
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"pin":"1234"}`))
		err := Decode(r, &request)
		require.Error(tt, err)

		var safeErr *SafeError
		require.True(tt, errors.As(err, &safeErr))
		assert.Equal(tt, http.StatusBadRequest, safeErr.StatusCode)
		require.Len(tt, safeErr.Fields, 1)
		assert.Equal(tt, "credentialOfferUri", safeErr.Fields[0].Field)
		assert.Contains(tt, safeErr.Fields[0].Error, "required")
	})

	t.Run("unknown field", func(tt *testing.T) {
		var request testRequest
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"credentialOfferUri":"x","other":1}`))
		assert.Error(tt, Decode(r, &request))
	})

	t.Run("not json", func(tt *testing.T) {
		var request testRequest
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`offer`))
		assert.Error(tt, Decode(r, &request))
	})
}

func TestShutdownError(t *testing.T) {
	err := NewShutdownError("integrity issue")
	assert.True(t, IsShutdown(err))
	assert.True(t, IsShutdown(errors.Wrap(err, "handling request")))
	assert.False(t, IsShutdown(errors.New("integrity issue")))
}
