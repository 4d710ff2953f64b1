// Package cmsclient is a Go client for the site CMS admin API.
package cmsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// sessionCookie is the cookie the CMS issues on login.
const sessionCookie = "cms_session"

// Client talks to a running CMS server with a single admin session.
type Client struct {
	baseURL    string
	password   string
	origin     string
	maxRetries uint64
	http       *http.Client
	stream     *http.Client // no overall timeout; bounded by ctx

	mu    sync.RWMutex
	token string
}

// New creates a new CMS client
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid BaseURL %q", config.BaseURL)
	}

	// Set defaults
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.Origin == "" {
		config.Origin = base.Scheme + "://" + base.Host
	}

	hc, stream := config.HTTPClient, config.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: config.Timeout}
		stream = &http.Client{}
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		password:   config.Password,
		origin:     config.Origin,
		maxRetries: config.MaxRetries,
		http:       hc,
		stream:     stream,
	}, nil
}

// Login exchanges the configured password for a session cookie.
func (c *Client) Login(ctx context.Context) error {
	if c.password == "" {
		return fmt.Errorf("login: %w: no password configured", ErrUnauthenticated)
	}
	body, err := json.Marshal(map[string]string{"password": c.password})
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, http.MethodPost, "/api/admin/auth/login", body, nil)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookie && ck.Value != "" {
			c.mu.Lock()
			c.token = ck.Value
			c.mu.Unlock()
			return nil
		}
	}
	return errors.New("login: server did not issue a session cookie")
}

// Logout clears the session on both sides.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodPost, "/api/admin/auth/logout", nil, nil)
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// Verify reports whether the current session is accepted by the server.
func (c *Client) Verify(ctx context.Context) (bool, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/admin/auth/verify", nil, nil)
	if err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}
	defer resp.Body.Close()

	var v verifyResponse
	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized:
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return false, fmt.Errorf("verify: decode response: %w", err)
		}
		return v.Authenticated, nil
	default:
		return false, decodeError(resp)
	}
}

// Health returns the server health status. A degraded server still returns
// its status without error.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/health", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, decodeError(resp)
	}
	var h HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("health: decode response: %w", err)
	}
	return &h, nil
}

// SiteConfig returns the resolved public site config.
func (c *Client) SiteConfig(ctx context.Context) (*SiteConfig, error) {
	resp, err := c.get(ctx, "/api/site/config")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sc SiteConfig
	if err := json.NewDecoder(resp.Body).Decode(&sc); err != nil {
		return nil, fmt.Errorf("site config: decode response: %w", err)
	}
	return &sc, nil
}

// GetConfig returns the whole stored document.
func (c *Client) GetConfig(ctx context.Context) (*Value, error) {
	return c.getValue(ctx, "/api/admin/config")
}

// PutConfig replaces the whole document. A non-zero ifMatch makes the write
// conditional on that version.
func (c *Client) PutConfig(ctx context.Context, data json.RawMessage, ifMatch int64) (int64, error) {
	return c.putValue(ctx, "/api/admin/config", data, ifMatch)
}

// GetSection returns the raw value of a top-level section.
func (c *Client) GetSection(ctx context.Context, section string) (*Value, error) {
	return c.getValue(ctx, "/api/admin/config/"+url.PathEscape(section))
}

// PutSection replaces one section, leaving its siblings untouched.
func (c *Client) PutSection(ctx context.Context, section string, data json.RawMessage, ifMatch int64) (int64, error) {
	return c.putValue(ctx, "/api/admin/config/"+url.PathEscape(section), data, ifMatch)
}

// GetIntent returns the landing content for one intent.
func (c *Client) GetIntent(ctx context.Context, intent string) (*Value, error) {
	return c.getValue(ctx, "/api/admin/config/intents/"+url.PathEscape(intent))
}

// PutIntent replaces the landing content for one intent.
func (c *Client) PutIntent(ctx context.Context, intent string, data json.RawMessage, ifMatch int64) (int64, error) {
	return c.putValue(ctx, "/api/admin/config/intents/"+url.PathEscape(intent), data, ifMatch)
}

// Origin returns the origin preview messages are sent from.
func (c *Client) Origin() string {
	return c.origin
}

// PostPreview relays a preview message and returns how many subscribers it
// reached.
func (c *Client) PostPreview(ctx context.Context, msg PreviewMessage) (int, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	hdr := http.Header{"Origin": []string{c.origin}}

	resp, err := c.do(ctx, http.MethodPost, "/api/admin/preview/messages", body, hdr)
	if err != nil {
		return 0, fmt.Errorf("post preview: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return 0, decodeError(resp)
	}
	var out struct {
		Delivered int `json:"delivered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("post preview: decode response: %w", err)
	}
	return out.Delivered, nil
}

func (c *Client) getValue(ctx context.Context, path string) (*Value, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &Value{Data: json.RawMessage(data), Version: parseETag(resp.Header.Get("ETag"))}, nil
}

func (c *Client) putValue(ctx context.Context, path string, data json.RawMessage, ifMatch int64) (int64, error) {
	var hdr http.Header
	if ifMatch > 0 {
		hdr = http.Header{"If-Match": []string{`"` + strconv.FormatInt(ifMatch, 10) + `"`}}
	}

	resp, err := c.do(ctx, http.MethodPut, path, data, hdr)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	var saved savedResponse
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return 0, fmt.Errorf("write %s: decode response: %w", path, err)
	}
	return saved.Version, nil
}

// get performs an idempotent GET, retrying transport failures and 5xx
// responses with exponential backoff. Non-2xx final responses are returned
// as errors.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	var resp *http.Response
	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(100*time.Millisecond))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		r, err := c.do(ctx, http.MethodGet, path, nil, nil)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		if r.StatusCode >= 500 {
			apiErr := decodeError(r)
			r.Body.Close()
			return retry.RetryableError(apiErr)
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			apiErr := decodeError(r)
			r.Body.Close()
			return apiErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// do sends a request with the session cookie, logging in once and resending
// when the server answers 401.
func (c *Client) do(ctx context.Context, method, path string, body []byte, hdr http.Header) (*http.Response, error) {
	if c.sessionToken() == "" && c.password != "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.send(ctx, method, path, body, hdr)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || c.password == "" {
		return resp, nil
	}

	// Session expired or was rotated: log in again and resend once.
	resp.Body.Close()
	if err := c.Login(ctx); err != nil {
		return nil, err
	}
	return c.send(ctx, method, path, body, hdr)
}

// send performs a single request.
func (c *Client) send(ctx context.Context, method, path string, body []byte, hdr http.Header) (*http.Response, error) {
	return c.sendWith(ctx, c.http, method, path, body, hdr)
}

func (c *Client) sendWith(ctx context.Context, hc *http.Client, method, path string, body []byte, hdr http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if token := c.sessionToken(); token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	}

	return hc.Do(req)
}

func (c *Client) sessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// parseETag extracts the document version from an ETag header.
func parseETag(tag string) int64 {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
	v, err := strconv.ParseInt(strings.Trim(tag, `"`), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
