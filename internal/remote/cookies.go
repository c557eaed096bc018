package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type savedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// SaveCookies writes the cookies the jar holds for the base URL as JSON.
func (c *Client) SaveCookies(w io.Writer) error {
	var out []savedCookie
	for _, ck := range c.jar.Cookies(c.base) {
		out = append(out, savedCookie{Name: ck.Name, Value: ck.Value})
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("encoding cookies: %w", err)
	}
	return nil
}

// LoadCookies restores cookies written by SaveCookies into the jar.
func (c *Client) LoadCookies(r io.Reader) error {
	var in []savedCookie
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("decoding cookies: %w", err)
	}
	c.SetCookies(toHTTP(in))
	return nil
}

// SetCookies adds cookies for the base URL.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.jar.SetCookies(c.base, cookies)
}

func toHTTP(in []savedCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, s := range in {
		path := s.Path
		if path == "" {
			path = "/"
		}
		out = append(out, &http.Cookie{Name: s.Name, Value: s.Value, Path: path, Domain: s.Domain, Expires: s.Expires})
	}
	return out
}
