package zhihu

import (
	"encoding/json"
	"fmt"

	"webdl/internal/document"
	"webdl/internal/media"
	"webdl/internal/store"
)

const KindColumn = "column"

var ColumnVersion = store.Version{Major: 1, Minor: 0}

type ColumnInfo struct {
	ID      string           `yaml:"id"`
	Title   string           `yaml:"title"`
	Author  *document.Author `yaml:"author,omitempty"`
	Image   *media.Image     `yaml:"image,omitempty"`
	Created int64            `yaml:"created_time"`
	Updated int64            `yaml:"updated_time"`
}

// Column is a series of articles (and answers) under one title.
type Column struct {
	Info        ColumnInfo
	Intro       *document.Content
	Description *document.Content
	Raw         *store.RawData
}

var _ store.Object = (*Column)(nil)

func (c *Column) Kind() string           { return KindColumn }
func (c *Column) ObjectID() string       { return c.Info.ID }
func (c *Column) Version() store.Version { return ColumnVersion }

func (c *Column) VisitImages(visit func(string, *media.Image) error) error {
	if err := visitImage("info.image", c.Info.Image, visit); err != nil {
		return err
	}
	if err := document.VisitContent(recIntro, c.Intro, visit); err != nil {
		return err
	}
	return document.VisitContent(recDescription, c.Description, visit)
}

func (c *Column) StoreTo(d *store.Dir) error {
	if err := d.Put(recInfo, c.Info); err != nil {
		return err
	}
	if err := putContent(d, recIntro, c.Intro); err != nil {
		return err
	}
	if err := putContent(d, recDescription, c.Description); err != nil {
		return err
	}
	if c.Raw != nil {
		return c.Raw.Put(store.RawDir(d))
	}
	return nil
}

func (c *Column) LoadFrom(d *store.Dir, opts store.LoadOptions) error {
	if err := d.Get(recInfo, &c.Info); err != nil {
		return err
	}
	var err error
	if c.Intro, err = getContent(d, recIntro); err != nil {
		return err
	}
	if c.Description, err = getContent(d, recDescription); err != nil {
		return err
	}
	if opts.Raw && store.RawDir(d).Has("info") {
		if c.Raw, err = store.LoadRawData(store.RawDir(d)); err != nil {
			return err
		}
	}
	return nil
}

type columnReply struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Author      json.RawMessage `json:"author"`
	Created     int64           `json:"created"`
	Updated     int64           `json:"updated"`
	ImageURL    string          `json:"image_url"`
	Intro       string          `json:"intro"`
	Description string          `json:"description"`
}

// ParseColumn builds a column from a raw API reply.
func ParseColumn(raw *store.RawData) (*Column, error) {
	return parseColumn(raw.Data, raw)
}

func parseColumn(data json.RawMessage, raw *store.RawData) (*Column, error) {
	var r columnReply
	if err := decode(KindColumn, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, fmt.Errorf("decoding column: missing id")
	}
	author, err := document.ParseAuthor(r.Author)
	if err != nil {
		return nil, fmt.Errorf("decoding column %s: %w", r.ID, err)
	}
	return &Column{
		Info: ColumnInfo{
			ID:      r.ID,
			Title:   r.Title,
			Author:  author,
			Image:   media.NewImage(r.ImageURL),
			Created: r.Created,
			Updated: r.Updated,
		},
		Intro:       document.NewContent(r.Intro),
		Description: document.NewContent(r.Description),
		Raw:         raw,
	}, nil
}

// parseColumnContribution decodes an entry of a user's column listing, which wraps the
// column in a "column" field.
func parseColumnContribution(data json.RawMessage, raw *store.RawData) (*Column, error) {
	var w struct {
		Column json.RawMessage `json:"column"`
	}
	if err := decode(KindColumn, data, &w); err != nil {
		return nil, err
	}
	if len(w.Column) == 0 {
		return nil, fmt.Errorf("decoding column: missing column field")
	}
	return parseColumn(w.Column, raw)
}
