// Package comment models the discussion threads attached to items. It fetches a thread
// through the remote API, backfills ancestors the listings left out, and rebuilds the
// parent/child tree from the flat result.
package comment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"webdl/internal/document"
	"webdl/internal/media"
	"webdl/internal/store"
)

// Kind is the store kind of standalone comments.
const Kind = "comment"

// Version is the record version of a comment.
var Version = store.Version{Major: 2, Minor: 1}

// Info is the metadata of a comment. ParentID is nil for a root comment.
type Info struct {
	ID         uint64           `yaml:"id" json:"id"`
	ParentID   *uint64          `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
	Author     *document.Author `yaml:"author,omitempty" json:"author,omitempty"`
	IsAuthor   bool             `yaml:"is_author" json:"is_author"`
	ChildCount uint32           `yaml:"child_count" json:"child_count"`
	// Created is a unix timestamp in seconds.
	Created int64 `yaml:"created" json:"created"`
}

// Comment is one comment with its HTML body.
type Comment struct {
	Info    Info              `yaml:"info" json:"info"`
	Content *document.Content `yaml:"content,omitempty" json:"content,omitempty"`
	Raw     *store.RawData    `yaml:"-" json:"-"`
}

var _ store.Object = (*Comment)(nil)

func (c *Comment) Kind() string           { return Kind }
func (c *Comment) ObjectID() string       { return strconv.FormatUint(c.Info.ID, 10) }
func (c *Comment) Version() store.Version { return Version }
func (c *Comment) HasChildren() bool      { return c.Info.ChildCount > 0 }
func (c *Comment) IsRoot() bool           { return c.Info.ParentID == nil }

// VisitImages implements media.HasImage.
func (c *Comment) VisitImages(visit func(string, *media.Image) error) error {
	return document.VisitContent("content", c.Content, visit)
}

// StoreTo writes the info, content and raw records.
func (c *Comment) StoreTo(d *store.Dir) error {
	if err := d.Put("info", c.Info); err != nil {
		return err
	}
	if c.Content != nil {
		if err := d.Put("content", c.Content); err != nil {
			return err
		}
	}
	if c.Raw != nil {
		return c.Raw.Put(store.RawDir(d))
	}
	return nil
}

// LoadFrom reads the records written by StoreTo.
func (c *Comment) LoadFrom(d *store.Dir, opts store.LoadOptions) error {
	if err := d.Get("info", &c.Info); err != nil {
		return err
	}
	if d.Has("content") {
		c.Content = &document.Content{}
		if err := d.Get("content", c.Content); err != nil {
			return err
		}
	}
	if opts.Raw && store.RawDir(d).Has("info") {
		raw, err := store.LoadRawData(store.RawDir(d))
		if err != nil {
			return err
		}
		c.Raw = raw
	}
	return nil
}

type reply struct {
	ID                u64Text         `json:"id"`
	ReplyCommentID    u64Text         `json:"reply_comment_id"`
	Author            json.RawMessage `json:"author"`
	IsAuthor          bool            `json:"is_author"`
	ChildCommentCount uint32          `json:"child_comment_count"`
	CreatedTime       int64           `json:"created_time"`
	Content           string          `json:"content"`
}

// u64Text is an id the API sends either as a decimal string or as a number.
type u64Text uint64

func (u *u64Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*u = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*u = 0
			return nil
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing id %q: %w", s, err)
		}
		*u = u64Text(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*u = u64Text(v)
	return nil
}

// Parse builds a comment from a raw API reply and keeps the snapshot.
func Parse(raw *store.RawData) (*Comment, error) {
	c, err := parseData(raw.Data)
	if err != nil {
		return nil, err
	}
	c.Raw = raw
	return c, nil
}

func parseData(data json.RawMessage) (*Comment, error) {
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding comment: %w", err)
	}
	if r.ID == 0 {
		return nil, fmt.Errorf("decoding comment: missing id")
	}
	author, err := document.ParseAuthor(r.Author)
	if err != nil {
		return nil, fmt.Errorf("decoding comment %d: %w", r.ID, err)
	}
	c := &Comment{
		Info: Info{
			ID:         uint64(r.ID),
			Author:     author,
			IsAuthor:   r.IsAuthor,
			ChildCount: r.ChildCommentCount,
			Created:    r.CreatedTime,
		},
		Content: document.NewContent(r.Content),
	}
	if r.ReplyCommentID != 0 {
		parent := uint64(r.ReplyCommentID)
		c.Info.ParentID = &parent
	}
	return c, nil
}

// StoreList writes comments embedded in another item as the record name of d.
func StoreList(d *store.Dir, name string, comments []*Comment) error {
	return d.Put(name, comments)
}

// LoadList reads comments written by StoreList. A missing record yields nil.
func LoadList(d *store.Dir, name string) ([]*Comment, error) {
	if !d.Has(name) {
		return nil, nil
	}
	var comments []*Comment
	if err := d.Get(name, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// VisitList visits the images of embedded comments, naming them field[i].content.images[j].
func VisitList(field string, comments []*Comment, visit func(string, *media.Image) error) error {
	for i, c := range comments {
		prefix := fmt.Sprintf("%s[%d].", field, i)
		err := c.VisitImages(func(f string, img *media.Image) error {
			return visit(prefix+f, img)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
