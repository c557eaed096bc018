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

const KindCollection = "collection"

var CollectionVersion = store.Version{Major: 1, Minor: 1}

type CollectionInfo struct {
	ID         uint64           `yaml:"id"`
	Title      string           `yaml:"title"`
	Creator    *document.Author `yaml:"creator,omitempty"`
	HasComment bool             `yaml:"has_comment"`
	Created    int64            `yaml:"created_time"`
	Updated    int64            `yaml:"updated_time"`
}

// Collection is a user's curated list of answers and articles.
type Collection struct {
	Info        CollectionInfo
	Description *document.Content
	extras
}

var (
	_ store.Object        = (*Collection)(nil)
	_ archive.Commentable = (*Collection)(nil)
)

func (c *Collection) Kind() string           { return KindCollection }
func (c *Collection) ObjectID() string       { return formatID(c.Info.ID) }
func (c *Collection) Version() store.Version { return CollectionVersion }

func (c *Collection) VisitImages(visit func(string, *media.Image) error) error {
	if err := document.VisitContent(recDescription, c.Description, visit); err != nil {
		return err
	}
	return c.extras.visit(visit)
}

func (c *Collection) StoreTo(d *store.Dir) error {
	if err := d.Put(recInfo, c.Info); err != nil {
		return err
	}
	if err := putContent(d, recDescription, c.Description); err != nil {
		return err
	}
	return c.extras.storeTo(d)
}

func (c *Collection) LoadFrom(d *store.Dir, opts store.LoadOptions) error {
	if err := d.Get(recInfo, &c.Info); err != nil {
		return err
	}
	desc, err := getContent(d, recDescription)
	if err != nil {
		return err
	}
	c.Description = desc
	return c.extras.loadFrom(d, opts)
}

func (c *Collection) CommentRoot() (comment.RootType, bool) {
	return comment.RootCollection, c.Info.HasComment
}

func (c *Collection) SetComments(comments []*comment.Comment) {
	c.Comments = comments
	if len(comments) == 0 {
		c.Info.HasComment = false
	}
}

type collectionReply struct {
	ID           numID           `json:"id"`
	Title        string          `json:"title"`
	CommentCount uint64          `json:"comment_count"`
	Creator      json.RawMessage `json:"creator"`
	Description  string          `json:"description"`
	CreatedTime  int64           `json:"created_time"`
	UpdatedTime  int64           `json:"updated_time"`
}

// ParseCollection builds a collection from the reply of the collection endpoint, which
// wraps the record in a "collection" field.
func ParseCollection(raw *store.RawData) (*Collection, error) {
	return parseCollectionWrapped(raw.Data, raw)
}

func parseCollectionWrapped(data json.RawMessage, raw *store.RawData) (*Collection, error) {
	var w struct {
		Collection json.RawMessage `json:"collection"`
	}
	if err := decode(KindCollection, data, &w); err != nil {
		return nil, err
	}
	if len(w.Collection) == 0 {
		return nil, fmt.Errorf("decoding collection: missing collection field")
	}
	return parseCollection(w.Collection, raw)
}

// parseCollection decodes a bare collection record as user listings return them.
func parseCollection(data json.RawMessage, raw *store.RawData) (*Collection, error) {
	var r collectionReply
	if err := decode(KindCollection, data, &r); err != nil {
		return nil, err
	}
	if r.ID == 0 {
		return nil, fmt.Errorf("decoding collection: missing id")
	}
	creator, err := document.ParseAuthor(r.Creator)
	if err != nil {
		return nil, fmt.Errorf("decoding collection %d: %w", r.ID, err)
	}
	return &Collection{
		Info: CollectionInfo{
			ID:         uint64(r.ID),
			Title:      r.Title,
			Creator:    creator,
			HasComment: r.CommentCount > 0,
			Created:    r.CreatedTime,
			Updated:    r.UpdatedTime,
		},
		Description: document.NewContent(r.Description),
		extras:      extras{Raw: raw},
	}, nil
}
