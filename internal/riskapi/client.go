// Package riskapi is the client of the remote Ganabosques data service.
package riskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ganabosques/ganabosques-geo/internal/batch"
	"github.com/ganabosques/ganabosques-geo/internal/session"
)

// StatusError is returned for responses with status >= 400.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed status=%d body=%s", e.Method, e.Path, e.Status, strings.TrimSpace(string(e.Body)))
}

// Client calls the data service. A nil session sends no Authorization header.
type Client struct {
	baseURL   string
	http      *http.Client
	session   *session.Session
	batchSize int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBatchSize sets the chunk size of the batched calls.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func NewClient(baseURL string, sess *session.Session, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		session:   sess,
		batchSize: batch.DefaultSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BatchSize is the chunk size used by the batched calls.
func (c *Client) BatchSize() int { return c.batchSize }

// DoJSON sends payload (when non-nil) as JSON and returns the response body.
func (c *Client) DoJSON(ctx context.Context, method, path string, payload []byte, headers map[string]string) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		if b := c.session.Bearer(); b != "" {
			req.Header.Set("Authorization", b)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		return blob, resp.StatusCode, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: blob}
	}
	return blob, resp.StatusCode, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	out, _, err := c.DoJSON(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return emptyAsNull(out), nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	out, _, err := c.DoJSON(ctx, http.MethodPost, path, blob, nil)
	if err != nil {
		return nil, err
	}
	return emptyAsNull(out), nil
}

func emptyAsNull(b []byte) json.RawMessage {
	if len(bytes.TrimSpace(b)) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}
