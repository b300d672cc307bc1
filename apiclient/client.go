// Package apiclient is the single choke point for every call to the quiz backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/core"
)

const tokenParam = "token"

type (
	// TokenSource supplies the session token attached to every request.
	TokenSource interface {
		Token() string
	}

	// UnauthorizedHandler is the policy applied whenever the backend answers 401.
	UnauthorizedHandler interface {
		HandleUnauthorized(ctx context.Context)
	}

	// UnauthorizedFunc adapts a function to an UnauthorizedHandler.
	UnauthorizedFunc func(ctx context.Context)

	// StaticToken is a TokenSource for a fixed token.
	StaticToken string

	Options struct {
		BaseURL        string
		HTTPClient     *http.Client
		Tokens         TokenSource
		OnUnauthorized UnauthorizedHandler
		Logger         core.Logger
	}

	Client struct {
		baseURL        string
		http           *http.Client
		tokens         TokenSource
		onUnauthorized UnauthorizedHandler
		logger         core.Logger
	}
)

func (f UnauthorizedFunc) HandleUnauthorized(ctx context.Context) { f(ctx) }

func (t StaticToken) Token() string { return string(t) }

// New returns a Client. Neither retries nor timeouts are configured: failures reach the caller as-is.
func New(opts Options) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           opts.HTTPClient,
		tokens:         opts.Tokens,
		onUnauthorized: opts.OnUnauthorized,
		logger:         opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = core.DefaultBackendURL
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.tokens == nil {
		c.tokens = StaticToken("")
	}
	return c
}

func (c *Client) token() string {
	return c.tokens.Token()
}

// request is one backend call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        interface{}
	rawBody     io.Reader
	contentType string
}

// do performs req and decodes a successful JSON response into out (when not nil).
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	u, err := url.Parse(c.baseURL + req.path)
	if err != nil {
		return errors.Wrap(err, "parsing request url")
	}

	// merge the token into the existing parameters
	q := u.Query()
	for k, vs := range req.query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if tok := c.token(); tok != "" {
		q.Set(tokenParam, tok)
	}
	u.RawQuery = q.Encode()

	body := req.rawBody
	contentType := req.contentType
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &TransportError{Method: req.method, Path: req.path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: req.method, Path: req.path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(req.method, req.path, resp.StatusCode, data)
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized.HandleUnauthorized(ctx)
		}
		if c.logger != nil && resp.StatusCode >= http.StatusInternalServerError {
			c.logger.Warn("backend error", apiErr)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decoding %s %s response", req.method, req.path)
	}
	return nil
}
