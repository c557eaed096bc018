// Package document holds the content shared by archived items: raw HTML bodies with the
// images they embed, and author records.
package document

import (
	"sort"
	"strings"

	"golang.org/x/net/html"

	"webdl/internal/media"
)

// Content is an HTML body plus one Image per distinct image URL it references.
type Content struct {
	HTML   string        `yaml:"html" json:"html"`
	Images []media.Image `yaml:"images,omitempty" json:"images,omitempty"`
}

// NewContent parses body for images. A nil Content is returned for an empty body.
func NewContent(body string) *Content {
	if body == "" {
		return nil
	}
	c := &Content{HTML: body}
	for _, u := range ImageURLs(body) {
		c.Images = append(c.Images, media.Image{URL: u})
	}
	return c
}

// VisitImages implements media.HasImage.
func (c *Content) VisitImages(visit func(string, *media.Image) error) error {
	if c == nil {
		return nil
	}
	return media.VisitList("images", c.Images, visit)
}

// VisitContent visits the images of c under the given field name. c may be nil.
func VisitContent(field string, c *Content, visit func(string, *media.Image) error) error {
	if c == nil {
		return nil
	}
	return c.VisitImages(func(f string, img *media.Image) error {
		return visit(field+"."+f, img)
	})
}

// Image returns the image for url, or nil.
func (c *Content) Image(url string) *media.Image {
	for i := range c.Images {
		if c.Images[i].SourceURL() == url {
			return &c.Images[i]
		}
	}
	return nil
}

// ImageURLs lists the distinct image URLs in body, sorted. For each <img> the
// data-original attribute wins over data-actualsrc, which wins over src.
func ImageURLs(body string) []string {
	seen := make(map[string]struct{})
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "img" {
			continue
		}
		if u := imageSource(tok.Attr); u != "" {
			seen[u] = struct{}{}
		}
	}
	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

func imageSource(attrs []html.Attribute) string {
	var original, actual, src string
	for _, a := range attrs {
		switch a.Key {
		case "data-original":
			original = a.Val
		case "data-actualsrc":
			actual = a.Val
		case "src":
			src = a.Val
		}
	}
	switch {
	case original != "":
		return original
	case actual != "":
		return actual
	default:
		return src
	}
}
