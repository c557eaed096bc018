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

const KindQuestion = "question"

var QuestionVersion = store.Version{Major: 1, Minor: 0}

type QuestionInfo struct {
	ID          uint64           `yaml:"id"`
	Title       string           `yaml:"title"`
	Author      *document.Author `yaml:"author,omitempty"`
	HasComment  bool             `yaml:"has_comment"`
	AnswerCount uint64           `yaml:"answer_count"`
	Created     int64            `yaml:"created_time"`
	Updated     int64            `yaml:"updated_time"`
}

// Question is a question with its detail text. Its answers are a listing.
type Question struct {
	Info    QuestionInfo
	Content *document.Content
	extras
}

var (
	_ store.Object        = (*Question)(nil)
	_ archive.Commentable = (*Question)(nil)
)

func (q *Question) Kind() string           { return KindQuestion }
func (q *Question) ObjectID() string       { return formatID(q.Info.ID) }
func (q *Question) Version() store.Version { return QuestionVersion }

func (q *Question) VisitImages(visit func(string, *media.Image) error) error {
	if err := document.VisitContent(recContent, q.Content, visit); err != nil {
		return err
	}
	return q.extras.visit(visit)
}

func (q *Question) StoreTo(d *store.Dir) error {
	if err := d.Put(recInfo, q.Info); err != nil {
		return err
	}
	if err := putContent(d, recContent, q.Content); err != nil {
		return err
	}
	return q.extras.storeTo(d)
}

func (q *Question) LoadFrom(d *store.Dir, opts store.LoadOptions) error {
	if err := d.Get(recInfo, &q.Info); err != nil {
		return err
	}
	c, err := getContent(d, recContent)
	if err != nil {
		return err
	}
	q.Content = c
	return q.extras.loadFrom(d, opts)
}

func (q *Question) CommentRoot() (comment.RootType, bool) {
	return comment.RootQuestion, q.Info.HasComment
}

func (q *Question) SetComments(comments []*comment.Comment) {
	q.Comments = comments
	if len(comments) == 0 {
		q.Info.HasComment = false
	}
}

type questionReply struct {
	ID           numID           `json:"id"`
	Title        string          `json:"title"`
	Author       json.RawMessage `json:"author"`
	CommentCount uint64          `json:"comment_count"`
	AnswerCount  uint64          `json:"answer_count"`
	Created      int64           `json:"created"`
	UpdatedTime  int64           `json:"updated_time"`
	Detail       string          `json:"detail"`
}

// ParseQuestion builds a question from a raw API reply.
func ParseQuestion(raw *store.RawData) (*Question, error) {
	return parseQuestion(raw.Data, raw)
}

func parseQuestion(data json.RawMessage, raw *store.RawData) (*Question, error) {
	var r questionReply
	if err := decode(KindQuestion, data, &r); err != nil {
		return nil, err
	}
	if r.ID == 0 {
		return nil, fmt.Errorf("decoding question: missing id")
	}
	author, err := document.ParseAuthor(r.Author)
	if err != nil {
		return nil, fmt.Errorf("decoding question %d: %w", r.ID, err)
	}
	updated := r.UpdatedTime
	if updated == 0 {
		updated = r.Created
	}
	return &Question{
		Info: QuestionInfo{
			ID:          uint64(r.ID),
			Title:       r.Title,
			Author:      author,
			HasComment:  r.CommentCount > 0,
			AnswerCount: r.AnswerCount,
			Created:     r.Created,
			Updated:     updated,
		},
		Content: document.NewContent(r.Detail),
		extras:  extras{Raw: raw},
	}, nil
}
