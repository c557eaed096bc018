package zhihu_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"webdl/internal/archive"
	"webdl/internal/comment"
	"webdl/internal/media"
	"webdl/internal/store"
	"webdl/internal/zhihu"
)

const userID = "0123456789abcdef0123456789abcdef"

func rawData(data string) *store.RawData {
	return store.NewRawData(json.RawMessage(data), time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), "")
}

func imageFields(t *testing.T, v media.HasImage) []string {
	t.Helper()
	var fields []string
	err := v.VisitImages(func(f string, img *media.Image) error {
		fields = append(fields, f+"="+img.SourceURL())
		return nil
	})
	if err != nil {
		t.Fatalf("VisitImages() error = %v", err)
	}
	return fields
}

func TestKey(t *testing.T) {
	reg := zhihu.NewRegistry(nil)
	tests := []struct {
		kind    string
		ref     string
		want    string
		wantErr bool
	}{
		{kind: "answer", ref: "123", want: "123"},
		{kind: "answer", ref: "https://www.zhihu.com/question/1/answer/456/", want: "456"},
		{kind: "answer", ref: "0", wantErr: true},
		{kind: "question", ref: "abc", wantErr: true},
		{kind: "column", ref: "https://zhuanlan.zhihu.com/c_1234?utm=x", want: "c_1234"},
		{kind: "column", ref: "bad id", wantErr: true},
		{kind: "user", ref: "0123456789ABCDEF0123456789ABCDEF:alice", want: userID + ":alice"},
		{kind: "user", ref: "alice", wantErr: true},
		{kind: "user", ref: "0123:alice", wantErr: true},
		{kind: "comment", ref: "77", want: "77"},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.ref, func(t *testing.T) {
			k, err := reg.Kind(tt.kind)
			if err != nil {
				t.Fatal(err)
			}
			got, err := k.Key(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Key(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Key(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := zhihu.NewRegistry(nil)

	if _, err := reg.Kind("zvideo"); !errors.Is(err, zhihu.ErrUnknownKind) {
		t.Errorf("Kind(zvideo) error = %v, want ErrUnknownKind", err)
	}
	if _, err := reg.Container("answer", "pinned"); !errors.Is(err, zhihu.ErrUnknownRelation) {
		t.Errorf("Container(answer, pinned) error = %v, want ErrUnknownRelation", err)
	}
	if _, err := reg.Container("zvideo", "comment"); !errors.Is(err, zhihu.ErrUnknownKind) {
		t.Errorf("Container(zvideo, comment) error = %v, want ErrUnknownKind", err)
	}

	tests := []struct {
		kind string
		want []string
	}{
		{kind: "answer", want: []string{"comment"}},
		{kind: "question", want: []string{"comment", "answer"}},
		{kind: "collection", want: []string{"comment", "item"}},
		{kind: "column", want: []string{"regular", "pinned"}},
		{kind: "comment", want: []string{"child"}},
		{kind: "user", want: []string{"answer", "article", "pin", "question", "column", "created_collection", "liked_collection"}},
	}
	for _, tt := range tests {
		if got := reg.Relations(tt.kind); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Relations(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}

	for _, name := range reg.Kinds() {
		if obj := reg.New(name); obj == nil || obj.Kind() != name {
			t.Errorf("New(%s) = %v", name, obj)
		}
	}
	if reg.New("any") != nil {
		t.Error("New(any) should be nil")
	}
}

func TestParseRelationKind(t *testing.T) {
	for r := zhihu.RelComment; r <= zhihu.RelQuestion; r++ {
		got, err := zhihu.ParseRelationKind(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRelationKind(%q) = %v, %v", r.String(), got, err)
		}
	}
	if _, err := zhihu.ParseRelationKind("activity"); !errors.Is(err, zhihu.ErrUnknownRelation) {
		t.Errorf("ParseRelationKind(activity) error = %v", err)
	}
}

func TestParseAnswer(t *testing.T) {
	a, err := zhihu.ParseAnswer(rawData(`{
		"id": 456, "author": {"id":"abc","name":"n","user_type":"people"},
		"question": {"id": "12", "title": "why?"},
		"comment_count": 3, "created_time": 100, "updated_time": 200,
		"content": "<p>because</p><img src=\"https://pic/a.jpg\">"}`))
	if err != nil {
		t.Fatalf("ParseAnswer() error = %v", err)
	}
	if a.ObjectID() != "456" || a.Info.Question != (zhihu.QuestionRef{ID: 12, Title: "why?"}) {
		t.Errorf("answer info = %+v", a.Info)
	}
	if a.Info.Author == nil || a.Info.Author.Name != "n" {
		t.Errorf("author = %+v", a.Info.Author)
	}
	root, has := a.CommentRoot()
	if root != comment.RootAnswer || !has {
		t.Errorf("CommentRoot() = %v, %v", root, has)
	}
	if got := imageFields(t, a); !reflect.DeepEqual(got, []string{"content.images[0]=https://pic/a.jpg"}) {
		t.Errorf("images = %v", got)
	}

	a.SetComments(nil)
	if _, has := a.CommentRoot(); has {
		t.Error("empty thread should clear has_comment")
	}
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		reply  string
		id     string
		images []string
	}{
		{
			name:   "article with cover",
			kind:   "article",
			reply:  `{"id":7,"title":"t","author":{"id":"0","name":"anon"},"comment_count":0,"title_image":"https://pic/cover.png","created":1,"updated":2,"content":"<p>x</p>"}`,
			id:     "7",
			images: []string{"info.cover=https://pic/cover.png"},
		},
		{
			name:  "question",
			kind:  "question",
			reply: `{"id":12,"title":"why?","created":5,"comment_count":1,"answer_count":4,"detail":"<p>d</p>"}`,
			id:    "12",
		},
		{
			name:   "collection",
			kind:   "collection",
			reply:  `{"collection":{"id":99,"title":"fav","comment_count":0,"creator":{"id":"c1","name":"c"},"description":"<img src=\"https://pic/d.gif\">","created_time":1,"updated_time":2}}`,
			id:     "99",
			images: []string{"description.images[0]=https://pic/d.gif"},
		},
		{
			name:   "column",
			kind:   "column",
			reply:  `{"id":"c_1","title":"col","author":{"id":"a1","name":"a"},"created":1,"updated":2,"image_url":"https://pic/col.jpg","intro":"hi","description":""}`,
			id:     "c_1",
			images: []string{"info.image=https://pic/col.jpg"},
		},
		{
			name:   "user",
			kind:   "user",
			reply:  `{"id":"` + userID + `","user_type":"people","name":"Alice","url_token":"alice","headline":"h","avatar_url":"https://pic/av.jpg","cover_url":"","description":""}`,
			id:     userID + ":alice",
			images: []string{"info.avatar=https://pic/av.jpg"},
		},
		{
			name:  "comment",
			kind:  "comment",
			reply: `{"id":"31","reply_comment_id":"30","author":{"id":"a","name":"a"},"child_comment_count":0,"created_time":3,"content":"ok"}`,
			id:    "31",
		},
	}
	reg := zhihu.NewRegistry(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := reg.Kind(tt.kind)
			if err != nil {
				t.Fatal(err)
			}
			obj, err := k.Parse(rawData(tt.reply))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if obj.Kind() != tt.kind || obj.ObjectID() != tt.id {
				t.Errorf("parsed %s/%s, want %s/%s", obj.Kind(), obj.ObjectID(), tt.kind, tt.id)
			}
			if got := imageFields(t, obj); !reflect.DeepEqual(got, tt.images) {
				t.Errorf("images = %v, want %v", got, tt.images)
			}
		})
	}
}

func TestParsePin_Repin(t *testing.T) {
	p, err := zhihu.ParsePin(rawData(`{"id":"1001","author":{"id":"a","name":"a"},"comment_count":2,"created":1,"updated":1,
		"content_html":"<p>look</p>",
		"repin":{"id":"900","author":{"id":"b","name":"b"},"comment_count":0,"created":0,"updated":0,"content_html":"<img src=\"https://pic/r.png\">"}}`))
	if err != nil {
		t.Fatalf("ParsePin() error = %v", err)
	}
	if p.Info.RepinID == nil || *p.Info.RepinID != 900 {
		t.Errorf("repin id = %v, want 900", p.Info.RepinID)
	}
	if p.Repin == nil || p.Repin.Info.Author.Name != "b" {
		t.Fatalf("repin body = %+v", p.Repin)
	}
	if got := imageFields(t, p); !reflect.DeepEqual(got, []string{"repin.content.images[0]=https://pic/r.png"}) {
		t.Errorf("images = %v", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		kind  string
		reply string
	}{
		{name: "answer without id", kind: "answer", reply: `{"content":"x"}`},
		{name: "not json", kind: "article", reply: `<html>`},
		{name: "collection not wrapped", kind: "collection", reply: `{"id":1}`},
		{name: "user with bad id", kind: "user", reply: `{"id":"xyz","url_token":"a"}`},
		{name: "user of unknown type", kind: "user", reply: `{"id":"` + userID + `","url_token":"a","user_type":"robot"}`},
	}
	reg := zhihu.NewRegistry(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, _ := reg.Kind(tt.kind)
			if _, err := k.Parse(rawData(tt.reply)); err == nil {
				t.Error("Parse() error = nil")
			}
		})
	}
}

func TestRelation_ParseItem(t *testing.T) {
	reg := zhihu.NewRegistry(nil)
	tests := []struct {
		kind, relation string
		entry          string
		want           string
		skip           bool
	}{
		{kind: "collection", relation: "item", entry: `{"content":{"type":"answer","id":5,"question":{"id":1,"title":"q"},"content":"a"}}`, want: "answer/5"},
		{kind: "collection", relation: "item", entry: `{"content":{"type":"zvideo","id":"8"}}`, skip: true},
		{kind: "collection", relation: "item", entry: `{"content":null}`, skip: true},
		{kind: "column", relation: "regular", entry: `{"type":"article","id":6,"title":"t","content":"c"}`, want: "article/6"},
		{kind: "column", relation: "pinned", entry: `{"type":"pin","id":"7"}`, skip: true},
		{kind: "user", relation: "column", entry: `{"column":{"id":"c_2","title":"c"}}`, want: "column/c_2"},
		{kind: "user", relation: "created_collection", entry: `{"id":3,"title":"mine"}`, want: "collection/3"},
		{kind: "answer", relation: "comment", entry: `{"id":40,"content":"hi"}`, want: "comment/40"},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.relation+"/"+tt.want, func(t *testing.T) {
			c, err := reg.Container(tt.kind, tt.relation)
			if err != nil {
				t.Fatal(err)
			}
			obj, err := c.ParseItem(rawData(tt.entry))
			if tt.skip {
				if !errors.Is(err, archive.ErrSkipEntry) {
					t.Errorf("ParseItem() error = %v, want ErrSkipEntry", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseItem() error = %v", err)
			}
			if got := obj.Kind() + "/" + obj.ObjectID(); got != tt.want {
				t.Errorf("ParseItem() = %s, want %s", got, tt.want)
			}
		})
	}
}
