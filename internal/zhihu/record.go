package zhihu

import (
	"encoding/json"
	"fmt"
	"strconv"

	"webdl/internal/comment"
	"webdl/internal/document"
	"webdl/internal/media"
	"webdl/internal/store"
)

// Record names inside an item's info directory.
const (
	recInfo        = "info"
	recContent     = "content"
	recComments    = "comments"
	recDescription = "description"
	recIntro       = "intro"
	recRepin       = "repin"
)

// extras are the records every commentable kind carries besides its own fields.
type extras struct {
	Comments []*comment.Comment
	Raw      *store.RawData
}

func (e *extras) storeTo(d *store.Dir) error {
	if e.Comments != nil {
		if err := comment.StoreList(d, recComments, e.Comments); err != nil {
			return err
		}
	}
	if e.Raw != nil {
		return e.Raw.Put(store.RawDir(d))
	}
	return nil
}

func (e *extras) loadFrom(d *store.Dir, opts store.LoadOptions) error {
	comments, err := comment.LoadList(d, recComments)
	if err != nil {
		return err
	}
	e.Comments = comments
	if opts.Raw && store.RawDir(d).Has("info") {
		raw, err := store.LoadRawData(store.RawDir(d))
		if err != nil {
			return err
		}
		e.Raw = raw
	}
	return nil
}

func (e *extras) visit(visit func(string, *media.Image) error) error {
	return comment.VisitList(recComments, e.Comments, visit)
}

func putContent(d *store.Dir, name string, c *document.Content) error {
	if c == nil {
		return nil
	}
	return d.Put(name, c)
}

// getContent reads a content record; a missing record yields nil.
func getContent(d *store.Dir, name string) (*document.Content, error) {
	if !d.Has(name) {
		return nil, nil
	}
	c := &document.Content{}
	if err := d.Get(name, c); err != nil {
		return nil, err
	}
	return c, nil
}

func visitImage(field string, img *media.Image, visit func(string, *media.Image) error) error {
	if img == nil {
		return nil
	}
	return visit(field, img)
}

func decode(kind string, data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", kind, err)
	}
	return nil
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

// object adapts a typed parser to the store.Object form kinds and relations use.
func object[T store.Object](parse func(json.RawMessage, *store.RawData) (T, error)) func(*store.RawData) (store.Object, error) {
	return func(raw *store.RawData) (store.Object, error) {
		v, err := parse(raw.Data, raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}
