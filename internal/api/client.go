package api

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

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/mbc"
)

// TokenHeader carries the access token on every HTTP request.
const TokenHeader = "X-GMM-Token"

// ErrUnauthorized is returned for any 401 answer. Callers treat it as fatal
// for the session.
var ErrUnauthorized = errors.New("unauthorized")

// RequestError is a request that failed in transport or got a non-2xx
// answer. Message is what the operator sees.
type RequestError struct {
	Method  string
	Path    string
	Status  int // 0 when the request never got an answer
	Message string
	Body    []byte
	Err     error
}

func (e *RequestError) Error() string { return e.Message }
func (e *RequestError) Unwrap() error { return e.Err }

// Client is a thin HTTP client for the remote Modbus service API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:8502).
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: normalizeBaseURL(baseURL),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

func (c *Client) BaseURL() string { return c.baseURL }

// Config fetches the service configuration and its derived invocation.
func (c *Client) Config(ctx context.Context) (ConfigResponse, error) {
	var resp ConfigResponse
	err := c.do(ctx, http.MethodGet, "/api/config", nil, &resp)
	return resp, err
}

// SaveConfig replaces the service configuration. The response echoes what
// the service stored.
func (c *Client) SaveConfig(ctx context.Context, cfg config.Remote) (ConfigResponse, error) {
	var resp ConfigResponse
	err := c.do(ctx, http.MethodPost, "/api/config", cfg, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (mbc.Stats, error) {
	var resp mbc.Stats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &resp)
	return resp, err
}

func (c *Client) Status(ctx context.Context) (mbc.ConnectionStatus, error) {
	var resp mbc.ConnectionStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

// Connect asks the service to open the device connection. The answer is
// usually "connecting"; the final outcome arrives as a push status.
func (c *Client) Connect(ctx context.Context) (mbc.ConnectionStatus, error) {
	var resp mbc.ConnectionStatus
	err := c.do(ctx, http.MethodPost, "/api/connect", nil, &resp)
	return resp, err
}

func (c *Client) Disconnect(ctx context.Context) (mbc.ConnectionStatus, error) {
	var resp mbc.ConnectionStatus
	err := c.do(ctx, http.MethodPost, "/api/disconnect", nil, &resp)
	return resp, err
}

// Read performs one device read. A read the device rejected comes back as a
// result with ErrorMessage set and a nil error, even though the service
// answers it with a non-2xx status.
func (c *Client) Read(ctx context.Context, req mbc.ReadRequest) (mbc.ReadResult, error) {
	var resp mbc.ReadResult
	err := c.do(ctx, http.MethodPost, "/api/read", req, &resp)

	var reqErr *RequestError
	if errors.As(err, &reqErr) && len(reqErr.Body) > 0 {
		var delivered mbc.ReadResult
		if json.Unmarshal(reqErr.Body, &delivered) == nil && delivered.Failed() {
			return delivered, nil
		}
	}
	return resp, err
}

func (c *Client) SerialDevices(ctx context.Context) ([]string, error) {
	var resp SerialDevicesResponse
	if err := c.do(ctx, http.MethodGet, "/api/serial-devices", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var resp VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// PushURL is the WebSocket endpoint, with the token as a query parameter.
func (c *Client) PushURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestError{Method: method, Path: path, Message: err.Error(), Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Method: method, Path: path, Message: err.Error(), Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return &RequestError{Method: method, Path: path, Status: res.StatusCode, Message: err.Error(), Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &RequestError{
			Method:  method,
			Path:    path,
			Status:  res.StatusCode,
			Message: failureMessage(res.StatusCode, data),
			Body:    data,
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Method: method, Path: path, Status: res.StatusCode, Message: "invalid response: " + err.Error(), Err: err}
	}
	return nil
}

// failureMessage prefers the service's {"error": "..."} text, then the HTTP
// status text.
func failureMessage(status int, body []byte) string {
	var parsed struct {
		Error *string `json:"error"`
	}
	msg := http.StatusText(status)
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
		msg = *parsed.Error
	}
	if msg == "" {
		return "request failed"
	}
	return msg
}
