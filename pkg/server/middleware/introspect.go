package middleware

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/internal/util"
)

type introspecter struct {
	// Introspection endpoint according to https://www.rfc-editor.org/rfc/rfc7662.
	endpoint string

	// Config of the client credentials to use for authenticating with Endpoint.
	conf clientcredentials.Config
}

func newIntrospect(endpoint string, config clientcredentials.Config) *introspecter {
	return &introspecter{
		endpoint: endpoint,
		conf:     config,
	}
}

// introspect extracts a token from the `Authorization` header, and determines whether it's active by using the
// endpoint configured. A `nil` error represents an active token.
func (s introspecter) introspect(ctx context.Context, req *http.Request) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)})
	client := s.conf.Client(ctx)

	token, err := util.BearerToken(req.Header.Get("Authorization"))
	if err != nil {
		return err
	}

	body := make(url.Values)
	body.Set("token", token)
	introspectionReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(body.Encode()))
	if err != nil {
		return err
	}
	introspectionReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	introspectionResp, err := client.Do(introspectionReq)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			logrus.WithError(err).Warn("closing body")
		}
	}(introspectionResp.Body)

	if introspectionResp.StatusCode != http.StatusOK {
		return errors.Errorf("introspection status does not indicate success: %d", introspectionResp.StatusCode)
	}

	result, err := extractIntrospectResult(introspectionResp.Body)
	if err != nil {
		return err
	}
	if !result.Active {
		return errors.New("invalid token")
	}
	return nil
}

func extractIntrospectResult(r io.Reader) (*result, error) {
	res := result{
		Optionals: make(map[string]json.RawMessage),
	}

	if err := json.NewDecoder(r).Decode(&res.Optionals); err != nil {
		return nil, err
	}

	if val, ok := res.Optionals["active"]; ok {
		if err := json.Unmarshal(val, &res.Active); err != nil {
			return nil, err
		}

		delete(res.Optionals, "active")
	}

	return &res, nil
}

// result is the OAuth2 Introspection Result
type result struct {
	Active bool

	Optionals map[string]json.RawMessage
}

// ClientCredentials builds the client credentials used against the introspection endpoint
func ClientCredentials(cfg config.AuthConfig) clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
}

// Introspect creates a middleware which gates access to the wallet API.
// The token is extracted from the `Authorization` header and sent to the introspect endpoint (which should be
// compliant with https://www.rfc-editor.org/rfc/rfc7662), which decides whether the token is active.
// config represents the client credentials to use for authenticating with the introspect endpoint.
func Introspect(endpoint string, config clientcredentials.Config) gin.HandlerFunc {
	intro := newIntrospect(endpoint, config)
	return func(c *gin.Context) {
		if err := intro.introspect(c.Request.Context(), c.Request); err != nil {
			logrus.WithError(err).Debug("rejecting request with an inactive token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		c.Next()
	}
}
