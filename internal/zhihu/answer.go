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

const KindAnswer = "answer"

var AnswerVersion = store.Version{Major: 1, Minor: 1}

// QuestionRef is the question an answer belongs to.
type QuestionRef struct {
	ID    uint64 `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
}

type AnswerInfo struct {
	ID         uint64           `yaml:"id"`
	Author     *document.Author `yaml:"author,omitempty"`
	Question   QuestionRef      `yaml:"question"`
	HasComment bool             `yaml:"has_comment"`
	Created    int64            `yaml:"created_time"`
	Updated    int64            `yaml:"updated_time"`
}

// Answer is an answer to a question.
type Answer struct {
	Info    AnswerInfo
	Content *document.Content
	extras
}

var (
	_ store.Object        = (*Answer)(nil)
	_ archive.Commentable = (*Answer)(nil)
)

func (a *Answer) Kind() string           { return KindAnswer }
func (a *Answer) ObjectID() string       { return formatID(a.Info.ID) }
func (a *Answer) Version() store.Version { return AnswerVersion }

func (a *Answer) VisitImages(visit func(string, *media.Image) error) error {
	if err := document.VisitContent(recContent, a.Content, visit); err != nil {
		return err
	}
	return a.extras.visit(visit)
}

func (a *Answer) StoreTo(d *store.Dir) error {
	if err := d.Put(recInfo, a.Info); err != nil {
		return err
	}
	if err := putContent(d, recContent, a.Content); err != nil {
		return err
	}
	return a.extras.storeTo(d)
}

func (a *Answer) LoadFrom(d *store.Dir, opts store.LoadOptions) error {
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

func (a *Answer) CommentRoot() (comment.RootType, bool) {
	return comment.RootAnswer, a.Info.HasComment
}

func (a *Answer) SetComments(comments []*comment.Comment) {
	a.Comments = comments
	if len(comments) == 0 {
		a.Info.HasComment = false
	}
}

type answerReply struct {
	ID       numID           `json:"id"`
	Author   json.RawMessage `json:"author"`
	Question struct {
		ID    numID  `json:"id"`
		Title string `json:"title"`
	} `json:"question"`
	CommentCount uint64 `json:"comment_count"`
	CreatedTime  int64  `json:"created_time"`
	UpdatedTime  int64  `json:"updated_time"`
	Content      string `json:"content"`
}

// ParseAnswer builds an answer from a raw API reply.
func ParseAnswer(raw *store.RawData) (*Answer, error) {
	return parseAnswer(raw.Data, raw)
}

func parseAnswer(data json.RawMessage, raw *store.RawData) (*Answer, error) {
	var r answerReply
	if err := decode(KindAnswer, data, &r); err != nil {
		return nil, err
	}
	if r.ID == 0 {
		return nil, fmt.Errorf("decoding answer: missing id")
	}
	author, err := document.ParseAuthor(r.Author)
	if err != nil {
		return nil, fmt.Errorf("decoding answer %d: %w", r.ID, err)
	}
	return &Answer{
		Info: AnswerInfo{
			ID:         uint64(r.ID),
			Author:     author,
			Question:   QuestionRef{ID: uint64(r.Question.ID), Title: r.Question.Title},
			HasComment: r.CommentCount > 0,
			Created:    r.CreatedTime,
			Updated:    r.UpdatedTime,
		},
		Content: document.NewContent(r.Content),
		extras:  extras{Raw: raw},
	}, nil
}
