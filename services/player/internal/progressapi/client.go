// Package progressapi is the HTTP client for the progress store service.
package progressapi

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

	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/progress"
)

var ErrMissingToken = errors.New("bearer token is required")

// StatusError is a non-2xx response from the store.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("progress api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("progress api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New returns a client for the store at baseURL. Every request carries
// token as a bearer credential.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid progress api url %q", baseURL)
	}
	c := &Client{base: u, token: token, http: &http.Client{Timeout: 10 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type recordEnvelope struct {
	Progress progress.Record `json:"progress"`
}

type listEnvelope struct {
	Progress []progress.Record `json:"progress"`
}

// Get fetches the caller's record for courseID; the store creates it on
// first access.
func (c *Client) Get(ctx context.Context, courseID string) (progress.Record, error) {
	var out recordEnvelope
	if err := c.do(ctx, http.MethodGet, "/progress/"+url.PathEscape(courseID), nil, &out); err != nil {
		return progress.Record{}, err
	}
	return out.Progress, nil
}

// Put sends rec for courseID and returns the stored record. An async store
// answers 202 without a body; rec itself is returned then.
func (c *Client) Put(ctx context.Context, courseID string, rec progress.Record) (progress.Record, error) {
	rec.CourseID = courseID
	var out recordEnvelope
	status, err := c.doStatus(ctx, http.MethodPut, "/progress/"+url.PathEscape(courseID), rec, &out)
	if err != nil {
		return progress.Record{}, err
	}
	if status == http.StatusAccepted {
		return rec, nil
	}
	return out.Progress, nil
}

// List returns up to limit of the caller's records, most recent first.
func (c *Client) List(ctx context.Context, limit int) ([]progress.Record, error) {
	path := "/progress"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out listEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Progress, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	_, err := c.doStatus(ctx, method, path, body, dst)
	return err
}

func (c *Client) doStatus(ctx context.Context, method, path string, body, dst any) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var env api.ErrorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env) == nil {
			se.Code, se.Message = env.Error.Code, env.Error.Message
		}
		return resp.StatusCode, se
	}
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent || dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
