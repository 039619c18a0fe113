// Package apiclient talks JSON over HTTP to the remote order backend and
// unwraps its {success, message, data} envelope.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/types"
)

const (
	DefaultTimeout = 15 * time.Second

	errorBodyReadLimit int64 = 1024
	bodyReadLimit      int64 = 4 << 20
)

var errBaseURLRequired = errors.New("order store base url is required")

// Observer receives one call per finished request.
type Observer interface {
	ObserveRequest(operation, outcome string, elapsed time.Duration)
}

// Client is a thin JSON client bound to one base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	observer   Observer
	now        func() time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout. A client supplied through
// WithHTTPClient is copied first so the caller's instance is left alone.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout <= 0 {
			return
		}
		clone := http.Client{}
		if c.httpClient != nil {
			clone = *c.httpClient
		}
		clone.Timeout = timeout
		c.httpClient = &clone
	}
}

// WithObserver attaches request metrics.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid order store base url %q", baseURL)
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return client, nil
}

// Get issues a GET and decodes the envelope data into out.
func (c *Client) Get(ctx context.Context, operation, path string, out any) error {
	return c.Do(ctx, operation, http.MethodGet, path, nil, out)
}

// Do sends body as JSON (when non-nil) and decodes the envelope data into
// out (when non-nil). Transport failures, non-2xx statuses and envelopes
// with success=false all surface as *errors.Error; a 404 maps to
// NOT_FOUND, everything else to DEPENDENCY_ERROR.
func (c *Client) Do(ctx context.Context, operation, method, path string, body, out any) (err error) {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "order store client not configured")
	}

	start := c.now()
	defer func() {
		if c.observer != nil {
			outcome := "ok"
			if err != nil {
				outcome = strings.ToLower(string(pkgerrors.As(err).Code()))
			}
			c.observer.ObserveRequest(operation, outcome, c.now().Sub(start))
		}
	}()

	var reader io.Reader
	if body != nil {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, marshalErr, "marshal "+operation+" request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+operation+" request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, operation+" request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		msg := errorMessage(raw, resp.StatusCode)
		code := pkgerrors.CodeDependency
		if resp.StatusCode == http.StatusNotFound {
			code = pkgerrors.CodeNotFound
		}
		return pkgerrors.New(code, msg).WithDetails(map[string]any{
			"operation": operation,
			"status":    resp.StatusCode,
		})
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, bodyReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read "+operation+" response")
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	var env types.RemoteEnvelope
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+operation+" response")
		}
	}

	data := env.Data
	if env.Success == nil {
		// bare payload without an envelope
		data = trimmed
	} else if !*env.Success {
		msg := env.Message
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		if msg == "" {
			msg = operation + " was rejected"
		}
		return pkgerrors.New(pkgerrors.CodeDependency, msg).WithDetails(map[string]any{"operation": operation})
	}

	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+operation+" data")
	}
	return nil
}

func errorMessage(raw []byte, status int) string {
	var env types.RemoteEnvelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Error != nil && env.Error.Message != "" {
			return env.Error.Message
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}

// Path joins escaped segments into a request path.
func Path(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return strings.Join(escaped, "/")
}
