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

const KindArticle = "article"

var ArticleVersion = store.Version{Major: 1, Minor: 1}

type ArticleInfo struct {
	ID         uint64           `yaml:"id"`
	Title      string           `yaml:"title"`
	Author     *document.Author `yaml:"author,omitempty"`
	Cover      *media.Image     `yaml:"cover,omitempty"`
	HasComment bool             `yaml:"has_comment"`
	Created    int64            `yaml:"created_time"`
	Updated    int64            `yaml:"updated_time"`
}

// Article is a column post.
type Article struct {
	Info    ArticleInfo
	Content *document.Content
	extras
}

var (
	_ store.Object        = (*Article)(nil)
	_ archive.Commentable = (*Article)(nil)
)

func (a *Article) Kind() string           { return KindArticle }
func (a *Article) ObjectID() string       { return formatID(a.Info.ID) }
func (a *Article) Version() store.Version { return ArticleVersion }

func (a *Article) VisitImages(visit func(string, *media.Image) error) error {
	if err := visitImage("info.cover", a.Info.Cover, visit); err != nil {
		return err
	}
	if err := document.VisitContent(recContent, a.Content, visit); err != nil {
		return err
	}
	return a.extras.visit(visit)
}

func (a *Article) StoreTo(d *store.Dir) error {
	if err := d.Put(recInfo, a.Info); err != nil {
		return err
	}
	if err := putContent(d, recContent, a.Content); err != nil {
		return err
	}
	return a.extras.storeTo(d)
}

func (a *Article) LoadFrom(d *store.Dir, opts store.LoadOptions) error {
	if err := d.Get(recInfo, &a.Info); err != nil {
		return err
	}
	c, err := getContent(d, recContent)
	if err != nil {
		return err
	}
	a.Content = c
	return a.extras.loadFrom(d, opts)
}

func (a *Article) CommentRoot() (comment.RootType, bool) {
	return comment.RootArticle, a.Info.HasComment
}

func (a *Article) SetComments(comments []*comment.Comment) {
	a.Comments = comments
	if len(comments) == 0 {
		a.Info.HasComment = false
	}
}

type articleReply struct {
	ID           numID           `json:"id"`
	Title        string          `json:"title"`
	Author       json.RawMessage `json:"author"`
	CommentCount uint64          `json:"comment_count"`
	TitleImage   string          `json:"title_image"`
	Created      int64           `json:"created"`
	Updated      int64           `json:"updated"`
	Content      string          `json:"content"`
}

// ParseArticle builds an article from a raw API reply.
func ParseArticle(raw *store.RawData) (*Article, error) {
	return parseArticle(raw.Data, raw)
}

func parseArticle(data json.RawMessage, raw *store.RawData) (*Article, error) {
	var r articleReply
	if err := decode(KindArticle, data, &r); err != nil {
		return nil, err
	}
	if r.ID == 0 {
		return nil, fmt.Errorf("decoding article: missing id")
	}
	author, err := document.ParseAuthor(r.Author)
	if err != nil {
		return nil, fmt.Errorf("decoding article %d: %w", r.ID, err)
	}
	return &Article{
		Info: ArticleInfo{
			ID:         uint64(r.ID),
			Title:      r.Title,
			Author:     author,
			Cover:      media.NewImage(r.TitleImage),
			HasComment: r.CommentCount > 0,
			Created:    r.Created,
			Updated:    r.Updated,
		},
		Content: document.NewContent(r.Content),
		extras:  extras{Raw: raw},
	}, nil
}
