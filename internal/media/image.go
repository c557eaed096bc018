package media

import "fmt"

// ImageRef is a fetched image. Data is only held in memory between fetch and store;
// the human readable record format drops it so the pool stays the only byte source.
type ImageRef struct {
	URL         string     `yaml:"url" json:"url"`
	Hash        HashDigest `yaml:"hash" json:"hash"`
	Extension   string     `yaml:"extension" json:"extension"`
	ContentType string     `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	Data        []byte     `yaml:"-" json:"data,omitempty"`
}

func (r *ImageRef) String() string {
	return fmt.Sprintf("image %s", r.Hash)
}

// Image is either a bare URL that was never fetched or a fetched reference.
type Image struct {
	URL string    `yaml:"url,omitempty" json:"url,omitempty"`
	Ref *ImageRef `yaml:"ref,omitempty" json:"ref,omitempty"`
}

// NewImage returns an unfetched image, or nil for an empty URL.
func NewImage(url string) *Image {
	if url == "" {
		return nil
	}
	return &Image{URL: url}
}

// Fetched reports whether the image has been downloaded.
func (i *Image) Fetched() bool { return i != nil && i.Ref != nil }

// SourceURL returns the URL the image was (or will be) fetched from.
func (i *Image) SourceURL() string {
	if i.Ref != nil {
		return i.Ref.URL
	}
	return i.URL
}

// HasImage is implemented by records embedding images. VisitImages calls visit for every
// image field, passing a dotted field name for error context. Nil images are skipped.
type HasImage interface {
	VisitImages(visit func(field string, img *Image) error) error
}

// VisitList visits every image of a list field, naming each element by index.
func VisitList(field string, imgs []Image, visit func(string, *Image) error) error {
	for i := range imgs {
		if err := visit(fmt.Sprintf("%s[%d]", field, i), &imgs[i]); err != nil {
			return err
		}
	}
	return nil
}

// StoreImages writes every fetched image of v that still carries its bytes.
// Images without data are skipped, not an error.
func StoreImages(s *Storer, v HasImage) error {
	return v.VisitImages(func(field string, img *Image) error {
		if img == nil || img.Ref == nil || img.Ref.Data == nil {
			return nil
		}
		return chain(field, s.Store(img.Ref.Hash, img.Ref.Extension, img.Ref.Data))
	})
}

// LoadImages fills the bytes of every fetched image of v from the pool.
func LoadImages(l *Loader, v HasImage) error {
	return v.VisitImages(func(field string, img *Image) error {
		if img == nil || img.Ref == nil {
			return nil
		}
		data, err := l.Load(img.Ref.Hash, img.Ref.Extension)
		if err != nil {
			return chain(field, err)
		}
		img.Ref.Data = data
		return nil
	})
}

// CollectRefs adds every fetched image of v to r.
func CollectRefs(r *RefSet, v HasImage) {
	_ = v.VisitImages(func(_ string, img *Image) error {
		if img != nil && img.Ref != nil {
			r.Add(img.Ref.Hash, img.Ref.Extension)
		}
		return nil
	})
}
