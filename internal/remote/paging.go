package remote

import (
	"context"
	"encoding/json"
	"fmt"
)

// Page is one reply of a paginated listing.
type Page struct {
	Data   []json.RawMessage `json:"data"`
	Paging Paging            `json:"paging"`
}

// Paging is the cursor part of a Page. Next is an absolute URL.
type Paging struct {
	IsEnd  bool   `json:"is_end"`
	Totals *int64 `json:"totals,omitempty"`
	Next   string `json:"next"`
}

// PageFunc observes progress: total is the server's count if it sent one, n the number of
// entries on the page just received.
type PageFunc func(total *int64, n int)

// GetPaged fetches every page starting at rawURL and returns the entries in arrival order.
// Only the first request is signed; next links are followed as given. The client sleeps
// after every page, the last one included. Any error aborts the whole listing.
func (c *Client) GetPaged(ctx context.Context, rawURL string, signer Signer, onPage PageFunc) ([]json.RawMessage, error) {
	var out []json.RawMessage
	next := rawURL
	first := true
	for {
		var page Page
		s := signer
		if !first {
			s = NoSign{}
		}
		if err := c.GetJSON(ctx, next, s, &page); err != nil {
			return nil, fmt.Errorf("fetching page: %w", err)
		}
		out = append(out, page.Data...)
		if onPage != nil {
			var total *int64
			if first {
				total = page.Paging.Totals
			}
			onPage(total, len(page.Data))
		}
		if err := c.Sleep(ctx); err != nil {
			return nil, err
		}
		if page.Paging.IsEnd || page.Paging.Next == "" {
			return out, nil
		}
		next = page.Paging.Next
		first = false
	}
}
