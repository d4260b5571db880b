package common

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
)

const (
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json"
	contentTypeForm   = "application/x-www-form-urlencoded"
)

// NewHTTPClient creates the client used for every upstream call, traced through otelhttp
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// WithoutRedirects returns a copy of the client that hands redirect responses back to the caller
func WithoutRedirects(client *http.Client) *http.Client {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

// Response is a fully read upstream response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Location parses the Location header of a redirect
func (r Response) Location() (*url.URL, error) {
	location := r.Header.Get("Location")
	if location == "" {
		return nil, framework.NewError(framework.Communication, "redirect without a location")
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, framework.WrapError(err, framework.Deserialization, "malformed redirect location")
	}
	return u, nil
}

// Do sends the request and reads the whole response. Transport failures are Communication errors; status codes are
// left to the caller.
func Do(client *http.Client, req *http.Request) (*Response, error) {
	logrus.Debugf("%s %s", req.Method, util.SanitizeLog(req.URL.String()))
	resp, err := client.Do(req)
	if err != nil {
		return nil, framework.WrapError(err, framework.Communication, "could not reach "+req.URL.Host)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Warn("closing body")
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, framework.WrapError(err, framework.Communication, "reading response body")
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// GetJSON fetches a JSON document into out
func GetJSON(ctx context.Context, client *http.Client, endpoint, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return framework.WrapError(err, framework.Communication, "creating request")
	}
	req.Header.Set("Accept", contentTypeJSON)
	return exchange(client, req, bearer, out)
}

// PostJSON posts in as JSON and decodes the JSON response into out, which may be nil
func PostJSON(ctx context.Context, client *http.Client, endpoint, bearer string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return framework.WrapError(err, framework.Serialization, "marshalling request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return framework.WrapError(err, framework.Communication, "creating request")
	}
	req.Header.Set(contentTypeHeader, contentTypeJSON)
	return exchange(client, req, bearer, out)
}

// PostForm posts a form-encoded body and returns the raw response, whatever its status
func PostForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, framework.WrapError(err, framework.Communication, "creating request")
	}
	req.Header.Set(contentTypeHeader, contentTypeForm)
	return Do(client, req)
}

// PostFormJSON posts a form-encoded body and decodes the JSON response into out
func PostFormJSON(ctx context.Context, client *http.Client, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return framework.WrapError(err, framework.Communication, "creating request")
	}
	req.Header.Set(contentTypeHeader, contentTypeForm)
	return exchange(client, req, "", out)
}

func exchange(client *http.Client, req *http.Request, bearer string, out any) error {
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := Do(client, req)
	if err != nil {
		return err
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return framework.NewErrorf(framework.Communication, "%s %s returned %d: %s",
			req.Method, req.URL.Redacted(), resp.StatusCode, util.SanitizeLog(string(resp.Body)))
	}
	if out == nil {
		return nil
	}
	if err = json.Unmarshal(resp.Body, out); err != nil {
		return framework.WrapError(err, framework.Deserialization, "unexpected response from "+req.URL.Host)
	}
	return nil
}

// CheckStatus fails with a Communication error unless the response is a success or a redirect
func (r Response) CheckStatus() error {
	if util.Is2xxResponse(r.StatusCode) || util.IsRedirect(r.StatusCode) {
		return nil
	}
	return framework.NewErrorf(framework.Communication, "upstream returned %d: %s", r.StatusCode, util.SanitizeLog(string(r.Body)))
}
