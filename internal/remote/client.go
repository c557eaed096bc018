package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	// Interval is the pause between consecutive requests.
	Interval time.Duration
	Timeout  time.Duration
	// Transport overrides the HTTP transport. Used by tests.
	Transport http.RoundTripper
}

// Client talks to the remote API. Requests are issued one at a time and separated by a
// fixed interval; there is no retry.
type Client struct {
	base      *url.URL
	userAgent string
	interval  time.Duration
	http      *http.Client
	jar       http.CookieJar
	requests  int
	pauses    int
}

// New creates a Client with an empty cookie jar.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Client{
		base:      base,
		userAgent: ua,
		interval:  opts.Interval,
		http:      &http.Client{Jar: jar, Timeout: opts.Timeout, Transport: opts.Transport},
		jar:       jar,
	}, nil
}

// BaseURL returns the site root.
func (c *Client) BaseURL() *url.URL { return c.base }

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return strings.TrimRight(c.base.String(), "/") + path
	}
	return c.base.ResolveReference(ref).String()
}

// Requests returns how many requests were sent.
func (c *Client) Requests() int { return c.requests }

// Pauses returns how many times Sleep was called.
func (c *Client) Pauses() int { return c.pauses }

// Interval returns the pause between requests.
func (c *Client) Interval() time.Duration { return c.interval }

// Sleep waits the request interval or until ctx is done.
func (c *Client) Sleep(ctx context.Context) error {
	c.pauses++
	if c.interval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Init visits the site root so the server can set its session cookies.
func (c *Client) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), nil)
	if err != nil {
		return fmt.Errorf("building init request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("initializing session: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return newStatusError(req.URL.String(), resp)
	}
	return nil
}

// Do sends req with the client's user agent and cookies.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	c.requests++
	return c.http.Do(req)
}

// GetRaw fetches rawURL, signed by signer, and returns the body. Non-2xx replies are
// a *StatusError and bodies that are not JSON are rejected.
func (c *Client) GetRaw(ctx context.Context, rawURL string, signer Signer) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if signer == nil {
		signer = NoSign{}
	}
	if err := signer.Sign(req); err != nil {
		return nil, fmt.Errorf("signing %s: %w", rawURL, err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(rawURL, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decoding %s: invalid json", rawURL)
	}
	return json.RawMessage(body), nil
}

// GetJSON fetches rawURL and decodes the reply into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, signer Signer, v any) error {
	body, err := c.GetRaw(ctx, rawURL, signer)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", rawURL, err)
	}
	return nil
}

// StatusError is a reply with a non-success status code.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.URL, e.Code, e.Body)
}

func newStatusError(u string, resp *http.Response) *StatusError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{URL: u, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}
