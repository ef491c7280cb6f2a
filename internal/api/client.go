// Package api is the sole network boundary towards the remote questionnaire
// backend. Every call returns the backend's uniform {success, data?, message?}
// envelope decoded into typed values.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quizbox/internal/model"

	"go.uber.org/zap"
)

// APIError is a backend-reported failure (success == false). The message is
// surfaced to the user verbatim when present.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "api: request failed"
	}
	return "api: " + e.Message
}

// Client issues typed HTTP requests against the backend base URL.
type Client struct {
	baseURL string
	hc      *http.Client
	log     *zap.Logger
	now     func() time.Time
}

// New creates a Client for the given base URL (no trailing slash needed).
func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 30 * time.Second},
		log:     log,
		now:     time.Now,
	}
}

// SetHTTPClient overrides the underlying HTTP client (tests, custom timeouts).
func (c *Client) SetHTTPClient(hc *http.Client) { c.hc = hc }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// endpoint resolves a path against the base URL, appending query values plus
// a cache-buster on GETs (the backend sits behind aggressive caches).
func (c *Client) endpoint(path string, q url.Values, bust bool) string {
	u := c.baseURL + "/" + path
	if q == nil {
		q = url.Values{}
	}
	if bust {
		q.Set("_", strconv.FormatInt(c.now().UnixMilli(), 10))
	}
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q, true), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil, false), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request and decodes the envelope. When out is non-nil the
// envelope data is decoded into it.
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.Debug("api call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("request %s: server status %d", req.URL.Path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Success {
		return &APIError{Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// variantPath appends the premium suffix for premium-family endpoints.
func variantPath(base string, v model.Variant) string {
	if v == model.VariantPremium {
		return base + "_premium.php"
	}
	return base + ".php"
}
