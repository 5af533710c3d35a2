// Package httpapi is the thin JSON transport shared by the REST adapters.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "pledge/internal/platform/errors"
	"pledge/internal/platform/id"
)

const maxErrorBody = 512

type Client struct {
	baseURL    string
	httpClient *http.Client
	ids        id.Generator
}

// New returns a client for baseURL. When token is non-empty every request
// carries it as a bearer token.
func New(ctx context.Context, baseURL, token string, ids id.Generator) *Client {
	httpClient := http.DefaultClient
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	}
	return NewWithHTTPClient(baseURL, httpClient, ids)
}

func NewWithHTTPClient(baseURL string, httpClient *http.Client, ids id.Generator) *Client {
	if ids == nil {
		ids = id.UUID{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient, ids: ids}
}

// Do sends body (when non-nil) as JSON and decodes a JSON response into out
// (when non-nil). A 204 or an empty body leaves out untouched.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", c.ids.New())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperrors.RemoteError{Op: op, Err: errors.Wrap(err, "request failed")}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperrors.RemoteError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "read response")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperrors.RemoteError{Op: op, Status: resp.StatusCode, Err: statusError(resp.StatusCode, raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperrors.RemoteError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	var sentinel error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = apperrors.ErrUnauthorized
	case http.StatusNotFound:
		sentinel = apperrors.ErrNotFound
	case http.StatusConflict:
		sentinel = apperrors.ErrConflict
	default:
		return fmt.Errorf("api error %d: %s", status, msg)
	}
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
