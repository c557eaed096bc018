package zhihu

import (
	"encoding/json"
	"fmt"

	"webdl/internal/archive"
	"webdl/internal/comment"
	"webdl/internal/document"
	"webdl/internal/media"
	"webdl/internal/store"
)

const KindPin = "pin"

var PinVersion = store.Version{Major: 1, Minor: 1}

type PinInfo struct {
	ID uint64 `yaml:"id"`
	// RepinID is set when the pin shares another pin.
	RepinID    *uint64          `yaml:"repin_id,omitempty"`
	Author     *document.Author `yaml:"author,omitempty"`
	HasComment bool             `yaml:"has_comment"`
	Created    int64            `yaml:"created_time"`
	Updated    int64            `yaml:"updated_time"`
}

// PinBody is the text of a pin or of the pin it shares.
type PinBody struct {
	Info    PinInfo           `yaml:"info"`
	Content *document.Content `yaml:"content,omitempty"`
}

// Pin is a short post. A repin embeds the shared pin's body.
type Pin struct {
	PinBody
	Repin *PinBody
	extras
}

var (
	_ store.Object        = (*Pin)(nil)
	_ archive.Commentable = (*Pin)(nil)
)

func (p *Pin) Kind() string           { return KindPin }
func (p *Pin) ObjectID() string       { return formatID(p.Info.ID) }
func (p *Pin) Version() store.Version { return PinVersion }

func (p *Pin) VisitImages(visit func(string, *media.Image) error) error {
	if err := document.VisitContent(recContent, p.Content, visit); err != nil {
		return err
	}
	if p.Repin != nil {
		if err := document.VisitContent("repin.content", p.Repin.Content, visit); err != nil {
			return err
		}
	}
	return p.extras.visit(visit)
}

func (p *Pin) StoreTo(d *store.Dir) error {
	if err := d.Put(recInfo, p.Info); err != nil {
		return err
	}
	if err := putContent(d, recContent, p.Content); err != nil {
		return err
	}
	if p.Repin != nil {
		if err := d.Put(recRepin, p.Repin); err != nil {
			return err
		}
	}
	return p.extras.storeTo(d)
}

func (p *Pin) LoadFrom(d *store.Dir, opts store.LoadOptions) error {
	if err := d.Get(recInfo, &p.Info); err != nil {
		return err
	}
	c, err := getContent(d, recContent)
	if err != nil {
		return err
	}
	p.Content = c
	if d.Has(recRepin) {
		p.Repin = &PinBody{}
		if err := d.Get(recRepin, p.Repin); err != nil {
			return err
		}
	}
	return p.extras.loadFrom(d, opts)
}

func (p *Pin) CommentRoot() (comment.RootType, bool) {
	return comment.RootPin, p.Info.HasComment
}

func (p *Pin) SetComments(comments []*comment.Comment) {
	p.Comments = comments
	if len(comments) == 0 {
		p.Info.HasComment = false
	}
}

type pinReply struct {
	ID           numID           `json:"id"`
	Author       json.RawMessage `json:"author"`
	CommentCount uint64          `json:"comment_count"`
	Created      int64           `json:"created"`
	Updated      int64           `json:"updated"`
	ContentHTML  string          `json:"content_html"`
	Repin        *pinReply       `json:"repin,omitempty"`
}

func (r *pinReply) body() (PinBody, error) {
	author, err := document.ParseAuthor(r.Author)
	if err != nil {
		return PinBody{}, fmt.Errorf("decoding pin %d: %w", r.ID, err)
	}
	return PinBody{
		Info: PinInfo{
			ID:         uint64(r.ID),
			Author:     author,
			HasComment: r.CommentCount > 0,
			Created:    r.Created,
			Updated:    r.Updated,
		},
		Content: document.NewContent(r.ContentHTML),
	}, nil
}

// ParsePin builds a pin from a raw API reply.
func ParsePin(raw *store.RawData) (*Pin, error) {
	return parsePin(raw.Data, raw)
}

func parsePin(data json.RawMessage, raw *store.RawData) (*Pin, error) {
	var r pinReply
	if err := decode(KindPin, data, &r); err != nil {
		return nil, err
	}
	if r.ID == 0 {
		return nil, fmt.Errorf("decoding pin: missing id")
	}
	b, err := r.body()
	if err != nil {
		return nil, err
	}
	p := &Pin{PinBody: b, extras: extras{Raw: raw}}
	if r.Repin != nil && r.Repin.ID != 0 {
		rb, err := r.Repin.body()
		if err != nil {
			return nil, err
		}
		p.Repin = &rb
		id := rb.Info.ID
		p.Info.RepinID = &id
	}
	return p, nil
}
