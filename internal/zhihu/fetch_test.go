package zhihu_test

import (
	"context"
	"path/filepath"
	"testing"

	"webdl/internal/archive"
	"webdl/internal/store"
	"webdl/internal/testutil"
	"webdl/internal/zhihu"
)

func newDriver(t *testing.T, api *testutil.FakeAPI, opts archive.Options) (*archive.Driver, *store.Store) {
	t.Helper()
	s, err := store.Create(filepath.Join(t.TempDir(), zhihu.Site), store.Options{})
	if err != nil {
		t.Fatalf("store.Create() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return archive.NewDriver(s, api.Client(), nil, nil, nil, nil, testutil.FixedClock(), opts), s
}

func TestFetch_QuestionWithComments(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Handle("/api/v4/questions/12", `{"id":12,"title":"why?","created":5,"comment_count":2,"detail":"<p>d</p>"}`)
	api.HandlePages("/api/v4/comment_v5/questions/12/root_comment",
		[]string{`{"id":"1","content":"first","child_comment_count":0}`},
		[]string{`{"id":"2","content":"second","child_comment_count":0}`},
	)
	d, _ := newDriver(t, api, archive.Options{Comments: true})
	reg := zhihu.NewRegistry(nil)
	k, _ := reg.Kind(zhihu.KindQuestion)

	obj, err := d.GetItem(context.Background(), k, "12")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	q := obj.(*zhihu.Question)
	if len(q.Comments) != 2 || !q.Info.HasComment {
		t.Errorf("comments = %d, has_comment = %v", len(q.Comments), q.Info.HasComment)
	}

	loaded, err := d.LoadItem(k, "12", store.LoadOptions{})
	if err != nil {
		t.Fatalf("LoadItem() error = %v", err)
	}
	lq := loaded.(*zhihu.Question)
	if lq.Info != q.Info || len(lq.Comments) != 2 {
		t.Errorf("loaded %+v with %d comments", lq.Info, len(lq.Comments))
	}
	if lq.Content == nil || lq.Content.HTML != "<p>d</p>" {
		t.Errorf("loaded content = %+v", lq.Content)
	}
}

func TestFetch_UserAnswers(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.HandlePages("/api/v4/members/alice/answers",
		[]string{
			`{"id":1,"question":{"id":10,"title":"a"},"content":"one"}`,
			`{"id":2,"question":{"id":10,"title":"a"},"content":"two"}`,
		},
		[]string{`{"id":3,"question":{"id":11,"title":"b"},"content":"three"}`},
	)
	d, s := newDriver(t, api, archive.Options{})
	c, err := zhihu.NewRegistry(nil).Container(zhihu.KindUser, "answer")
	if err != nil {
		t.Fatal(err)
	}
	owner := userID + ":alice"

	items, err := d.UpdateContainer(context.Background(), c, owner)
	if err != nil {
		t.Fatalf("UpdateContainer() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("UpdateContainer() = %d items, want 3", len(items))
	}
	for _, id := range []string{"1", "2", "3"} {
		if !s.InStore(zhihu.KindAnswer, id) {
			t.Errorf("answer/%s not in store", id)
		}
	}
	if !s.ContainerFetched(zhihu.KindUser, owner, "answer") {
		t.Error("listing not marked fetched")
	}
	keys, err := d.LoadContainer(c, owner)
	if err != nil || len(keys) != 3 {
		t.Errorf("LoadContainer() = %v, %v", keys, err)
	}
}

func TestFetch_ColumnSkipsOtherEntries(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.HandlePages("/api/v4/columns/c_1/items", []string{
		`{"type":"article","id":6,"title":"t","content":"c"}`,
		`{"type":"zvideo","id":"8"}`,
	})
	d, s := newDriver(t, api, archive.Options{})
	c, _ := zhihu.NewRegistry(nil).Container(zhihu.KindColumn, "regular")

	items, err := d.UpdateContainer(context.Background(), c, "c_1")
	if err != nil {
		t.Fatalf("UpdateContainer() error = %v", err)
	}
	if len(items) != 1 || items[0].Item.Kind() != zhihu.KindArticle {
		t.Errorf("UpdateContainer() = %+v, want the article only", items)
	}
	if !s.InStore(zhihu.KindArticle, "6") {
		t.Error("article/6 not in store")
	}
}
