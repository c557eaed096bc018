package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// UnknownExtension is used when the content type of a blob cannot be sniffed.
const UnknownExtension = "unknown"

// Doer sends HTTP requests. *http.Client and the remote client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads images and hashes them while streaming.
type Fetcher struct {
	Client Doer
	Algo   Algorithm
}

// NewFetcher creates a Fetcher hashing with algo.
func NewFetcher(client Doer, algo Algorithm) *Fetcher {
	return &Fetcher{Client: client, Algo: algo}
}

// Fetch downloads rawURL and returns a reference carrying the bytes.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*ImageRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building image request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching image %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching image %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	h := f.Algo.New()
	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(h, &buf), resp.Body); err != nil {
		return nil, fmt.Errorf("reading image %s: %w", rawURL, err)
	}
	data := buf.Bytes()

	ref := &ImageRef{
		URL:  rawURL,
		Hash: digestFromHasher(f.algo(), h),
		Data: data,
	}
	mt := mimetype.Detect(data)
	ref.ContentType = mt.String()
	ref.Extension = strings.TrimPrefix(mt.Extension(), ".")
	if ref.Extension == "" {
		ref.Extension = UnknownExtension
	}
	return ref, nil
}

func (f *Fetcher) algo() Algorithm {
	if f.Algo == "" {
		return SHA256
	}
	return f.Algo
}

// FetchAll fetches every unfetched image in imgs. Inline data: URLs and URLs that do not
// parse are left alone. A failed image stays unfetched and is returned in failures; it
// never aborts the rest of the batch. changed reports whether any image was fetched.
func (f *Fetcher) FetchAll(ctx context.Context, imgs []*Image) (changed bool, failures []error) {
	for _, img := range imgs {
		if img == nil || img.Fetched() {
			continue
		}
		if !fetchable(img.URL) {
			continue
		}
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			return changed, failures
		}
		ref, err := f.Fetch(ctx, img.URL)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		img.Ref = ref
		changed = true
	}
	return changed, failures
}

func fetchable(raw string) bool {
	if strings.HasPrefix(raw, "data:") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Collect gathers every image of v in visit order.
func Collect(v HasImage) []*Image {
	var imgs []*Image
	_ = v.VisitImages(func(_ string, img *Image) error {
		if img != nil {
			imgs = append(imgs, img)
		}
		return nil
	})
	return imgs
}
