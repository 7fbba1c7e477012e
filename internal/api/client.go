package api

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/chatscope/chatscope/internal/errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TunnelBypassHeader suppresses the interstitial page of the tunnelling service that exposes the backend.
const TunnelBypassHeader = "ngrok-skip-browser-warning"

var ErrInvalidBaseURL = errors.NewSentinel("invalid base URL")

// Config configures a [Client].
type Config struct {
	// BaseURL is the backend origin, e.g., "https://api.example.com". Request paths are appended verbatim.
	BaseURL string
	// TunnelBypass adds TunnelBypassHeader to every request.
	TunnelBypass bool
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration
	// HTTPClient overrides the default HTTP client, e.g., in tests.
	HTTPClient *http.Client
}

// Client performs single-attempt requests against the chat analysis backend.
type Client struct {
	baseURL    string
	headers    http.Header
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates cfg and returns a ready to use Client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Wrap(ErrInvalidBaseURL, "parse base URL", slog.String("base_url", cfg.BaseURL))
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout} //nolint:exhaustruct // defaults are fine
	}
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if cfg.TunnelBypass {
		headers.Set(TunnelBypassHeader, "true")
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		headers:    headers,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request sends a request to path on the backend and decodes the JSON response into out.
//
// An empty or non-JSON success body leaves out untouched. Non-2xx responses are returned as [*Error].
// header may be nil; its values take precedence over the default headers.
func (c *Client) request(
	ctx context.Context,
	method, path string,
	body io.Reader,
	header http.Header,
	out any,
) error {
	var (
		req *http.Request
		err error
	)
	if req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body); err != nil {
		return errors.Wrap(err, "create request", slog.String("path", path))
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	for k, v := range header {
		req.Header[k] = v
	}

	start := time.Now()
	var resp *http.Response
	if resp, err = c.httpClient.Do(req); err != nil {
		return errors.Wrap(err, "do request", slog.String("method", method), slog.String("path", path))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var raw []byte
	if raw, err = io.ReadAll(resp.Body); err != nil {
		return errors.Wrap(err, "read response body", slog.String("path", path))
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "backend request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	return c.decodeResponse(ctx, resp, raw, out)
}

func (c *Client) decodeResponse(ctx context.Context, resp *http.Response, raw []byte, out any) error {
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	trimmed := bytes.TrimSpace(raw)
	isJSON := len(trimmed) > 0 && json.Valid(trimmed)

	if !ok {
		return &Error{Status: resp.StatusCode, Message: errorMessage(resp, trimmed, isJSON)}
	}
	if len(trimmed) == 0 {
		return nil
	}
	if !isJSON {
		// The backend accepted the request, so a text body is treated like an empty one.
		c.logger.LogAttrs(ctx, slog.LevelDebug, "ignoring non-JSON success body",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(raw)))
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &DecodeError{Status: resp.StatusCode, Body: string(raw), Err: err}
	}
	return nil
}

// errorMessage picks the "detail" of an error body: strings verbatim, other JSON values encoded.
// Without a detail it falls back to the response's status text.
func errorMessage(resp *http.Response, body []byte, isJSON bool) string {
	if !isJSON {
		if len(body) > 0 {
			return string(body)
		}
		return statusText(resp)
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return statusText(resp)
	}
	detail, found := envelope["detail"]
	if !found {
		return statusText(resp)
	}
	if bytes.Equal(detail, []byte("null")) {
		return "null"
	}
	var s string
	if err := json.Unmarshal(detail, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, detail); err != nil {
		return string(detail)
	}
	return compact.String()
}

// statusText prefers the server's reason phrase and never returns an empty string.
func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); reason != "" {
		return reason
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "HTTP " + code
}
