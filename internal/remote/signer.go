package remote

import (
	"fmt"
	"net/http"
	"sort"
)

// Signer adds whatever the remote API requires to authenticate a request.
type Signer interface {
	Sign(req *http.Request) error
}

// NoSign leaves requests unchanged.
type NoSign struct{}

func (NoSign) Sign(*http.Request) error { return nil }

// HeaderSigner sets a fixed set of headers, e.g. ones captured from a browser session.
type HeaderSigner struct {
	Headers map[string]string
}

func (s HeaderSigner) Sign(req *http.Request) error {
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// NewSigner returns the signer named by kind.
func NewSigner(kind string, headers map[string]string) (Signer, error) {
	switch kind {
	case "", "none":
		return NoSign{}, nil
	case "headers":
		if len(headers) == 0 {
			return nil, fmt.Errorf("headers signer requires at least one header")
		}
		return HeaderSigner{Headers: headers}, nil
	default:
		return nil, fmt.Errorf("unknown signer type: %s", kind)
	}
}

// HeaderNames returns the configured header names, sorted. Values are not exposed.
func (s HeaderSigner) HeaderNames() []string {
	names := make([]string, 0, len(s.Headers))
	for k := range s.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
