package archive_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"webdl/internal/archive"
	"webdl/internal/comment"
	"webdl/internal/media"
	"webdl/internal/remote"
	"webdl/internal/store"
	"webdl/internal/testutil"
)

// note is a minimal commentable item with one image.
type note struct {
	ID           string             `yaml:"id" json:"id"`
	Title        string             `yaml:"title" json:"title"`
	Cover        *media.Image       `yaml:"cover,omitempty" json:"-"`
	CommentCount int                `yaml:"comment_count" json:"comment_count"`
	Comments     []*comment.Comment `yaml:"-" json:"-"`
	Raw          *store.RawData     `yaml:"-" json:"-"`
}

func (n *note) Kind() string           { return "note" }
func (n *note) ObjectID() string       { return n.ID }
func (n *note) Version() store.Version { return store.Version{Major: 1, Minor: 0} }

func (n *note) VisitImages(visit func(string, *media.Image) error) error {
	if n.Cover != nil {
		if err := visit("cover", n.Cover); err != nil {
			return err
		}
	}
	return comment.VisitList("comments", n.Comments, visit)
}

func (n *note) StoreTo(d *store.Dir) error {
	if err := d.Put("info", n); err != nil {
		return err
	}
	if n.Comments != nil {
		if err := comment.StoreList(d, "comments", n.Comments); err != nil {
			return err
		}
	}
	if n.Raw != nil {
		return n.Raw.Put(store.RawDir(d))
	}
	return nil
}

func (n *note) LoadFrom(d *store.Dir, opts store.LoadOptions) error {
	if err := d.Get("info", n); err != nil {
		return err
	}
	comments, err := comment.LoadList(d, "comments")
	if err != nil {
		return err
	}
	n.Comments = comments
	if opts.Raw {
		raw, err := store.LoadRawData(store.RawDir(d))
		if err != nil {
			return err
		}
		n.Raw = raw
	}
	return nil
}

func (n *note) CommentRoot() (comment.RootType, bool) {
	return comment.RootAnswer, n.CommentCount > 0
}

func (n *note) SetComments(comments []*comment.Comment) {
	n.Comments = comments
	if len(comments) == 0 {
		n.CommentCount = 0
	}
}

type noteReply struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	Title        string `json:"title"`
	Cover        string `json:"cover"`
	CommentCount int    `json:"comment_count"`
}

func parseNote(raw *store.RawData) (*note, error) {
	var r noteReply
	if err := json.Unmarshal(raw.Data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, errors.New("note without id")
	}
	return &note{ID: r.ID, Title: r.Title, Cover: media.NewImage(r.Cover), CommentCount: r.CommentCount, Raw: raw}, nil
}

type noteKind struct{}

func (noteKind) Name() string { return "note" }

func (noteKind) Key(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("empty reference")
	}
	return ref, nil
}

func (noteKind) Fetch(ctx context.Context, c *remote.Client, id string) (json.RawMessage, error) {
	return c.GetRaw(ctx, c.URL("/api/notes/"+id), nil)
}

func (noteKind) Parse(raw *store.RawData) (store.Object, error) { return parseNote(raw) }
func (noteKind) New() store.Object                            { return &note{} }

// boardNotes lists the notes pinned to a board. Entries of other types are skipped.
type boardNotes struct{}

func (boardNotes) Owner() string    { return "board" }
func (boardNotes) Relation() string { return "notes" }

func (boardNotes) FetchItems(ctx context.Context, c *remote.Client, id string, onPage remote.PageFunc) ([]json.RawMessage, error) {
	return c.GetPaged(ctx, c.URL("/api/boards/"+id+"/notes"), nil, onPage)
}

func (boardNotes) ParseItem(raw *store.RawData) (store.Object, error) {
	var r noteReply
	if err := json.Unmarshal(raw.Data, &r); err != nil {
		return nil, err
	}
	if r.Type != "note" {
		return nil, fmt.Errorf("%w: type %q", archive.ErrSkipEntry, r.Type)
	}
	return parseNote(raw)
}

// recorder counts reporter calls.
type recorder struct {
	archive.NopReporter
	mu           sync.Mutex
	imageFailed  int
	entrySkipped int
	tombstoned   []string
}

func (r *recorder) ImageFailed(string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imageFailed++
}

func (r *recorder) EntrySkipped(string, string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entrySkipped++
}

func (r *recorder) Tombstoned(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tombstoned = append(r.tombstoned, kind+"/"+id)
}

type fixture struct {
	api      *testutil.FakeAPI
	client   *remote.Client
	store    *store.Store
	driver   *archive.Driver
	reporter *recorder
}

func newFixture(t *testing.T, opts archive.Options) (*fixture, func(kind, id string) []string) {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	s, err := store.Create(filepath.Join(t.TempDir(), "store"), store.Options{})
	if err != nil {
		t.Fatalf("store.Create() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	client := api.Client()
	history, db := testutil.NewTestHistory(t)
	rec := &recorder{}
	d := archive.NewDriver(s, client, media.NewFetcher(client, media.SHA256), history, rec, nil, testutil.FixedClock(), opts)

	actions := func(kind, id string) []string {
		t.Helper()
		events, err := db.ItemHistory(kind, id)
		if err != nil {
			t.Fatalf("ItemHistory() error = %v", err)
		}
		var out []string
		for _, e := range events {
			out = append(out, e.Action)
		}
		return out
	}
	return &fixture{api: api, client: client, store: s, driver: d, reporter: rec}, actions
}

func TestDriver_GetItem_Idempotent(t *testing.T) {
	f, actions := newFixture(t, archive.Options{})
	f.api.Handle("/api/notes/1", `{"id":"1","title":"first"}`)
	ctx := context.Background()

	item, err := f.driver.GetItem(ctx, noteKind{}, "1")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if item == nil || item.(*note).Title != "first" {
		t.Fatalf("GetItem() = %+v", item)
	}
	if !f.store.InStore("note", "1") {
		t.Error("note/1 not in store after GetItem")
	}
	if info := f.store.ItemInfo("note", "1"); !info.OnServer {
		t.Error("directly fetched note should be on server")
	}

	before := f.api.Total()
	item, err = f.driver.GetItem(ctx, noteKind{}, "1")
	if err != nil {
		t.Fatalf("second GetItem() error = %v", err)
	}
	if item != nil {
		t.Errorf("second GetItem() = %+v, want nil for a stored item", item)
	}
	if got := f.api.Total() - before; got != 0 {
		t.Errorf("second GetItem() made %d requests, want 0", got)
	}

	loaded, err := f.driver.LoadItem(noteKind{}, "1", store.LoadOptions{Raw: true})
	if err != nil {
		t.Fatalf("LoadItem() error = %v", err)
	}
	n := loaded.(*note)
	if n.Title != "first" {
		t.Errorf("loaded title = %q", n.Title)
	}
	if n.Raw == nil || !n.Raw.Info.FetchTime.Equal(testutil.FixedClock().Now()) {
		t.Errorf("raw snapshot = %+v, want fetch time of the clock", n.Raw)
	}
	if got := actions("note", "1"); !reflect.DeepEqual(got, []string{"get"}) {
		t.Errorf("history = %v, want [get]", got)
	}
}

func TestDriver_UpdateItem(t *testing.T) {
	f, actions := newFixture(t, archive.Options{})
	ctx := context.Background()
	f.api.Handle("/api/notes/1", `{"id":"1","title":"old"}`)
	if _, err := f.driver.GetItem(ctx, noteKind{}, "1"); err != nil {
		t.Fatal(err)
	}

	f.api.Handle("/api/notes/1", `{"id":"1","title":"new"}`)
	if _, err := f.driver.UpdateItem(ctx, noteKind{}, "1"); err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	if got := f.api.Hits("/api/notes/1"); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	loaded, err := f.driver.LoadItem(noteKind{}, "1", store.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if loaded.(*note).Title != "new" {
		t.Errorf("title after update = %q, want new", loaded.(*note).Title)
	}
	if got := actions("note", "1"); !reflect.DeepEqual(got, []string{"get", "update"}) {
		t.Errorf("history = %v, want [get update]", got)
	}
}

func TestDriver_GetItem_FetchError(t *testing.T) {
	f, _ := newFixture(t, archive.Options{})
	f.api.HandleStatus("/api/notes/9", http.StatusNotFound)

	_, err := f.driver.GetItem(context.Background(), noteKind{}, "9")
	var ie *archive.ItemError
	if !errors.As(err, &ie) {
		t.Fatalf("GetItem() error = %v, want *ItemError", err)
	}
	if ie.Stage != archive.StageFetch || ie.Kind != "note" || ie.ID != "9" {
		t.Errorf("ItemError = %+v", ie)
	}
	var se *remote.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("error does not wrap the 404: %v", err)
	}
	if f.store.InStore("note", "9") {
		t.Error("failed item recorded as in store")
	}
}

func TestDriver_Images(t *testing.T) {
	f, _ := newFixture(t, archive.Options{})
	png := []byte("\x89PNG\r\n\x1a\nnot really a png")
	f.api.HandleBytes("/img/cover.png", "image/png", png)
	f.api.Handle("/api/notes/1", fmt.Sprintf(`{"id":"1","cover":"%s/img/cover.png"}`, f.api.URL()))
	f.api.Handle("/api/notes/2", fmt.Sprintf(`{"id":"2","cover":"%s/img/missing.png"}`, f.api.URL()))
	ctx := context.Background()

	if _, err := f.driver.GetItem(ctx, noteKind{}, "1"); err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	loaded, err := f.driver.LoadItem(noteKind{}, "1", store.LoadOptions{Media: true})
	if err != nil {
		t.Fatal(err)
	}
	cover := loaded.(*note).Cover
	if !cover.Fetched() {
		t.Fatalf("cover not fetched: %+v", cover)
	}
	if string(cover.Ref.Data) != string(png) {
		t.Error("cover bytes not loaded from the pool")
	}
	if _, err := os.Stat(cover.Ref.Hash.PoolPath(f.store.MediaDir())); err != nil {
		t.Errorf("pool file missing: %v", err)
	}

	// A failed image is reported and the item is stored anyway.
	if _, err := f.driver.GetItem(ctx, noteKind{}, "2"); err != nil {
		t.Fatalf("GetItem() with broken image error = %v", err)
	}
	if f.reporter.imageFailed != 1 {
		t.Errorf("image failures reported = %d, want 1", f.reporter.imageFailed)
	}
	loaded, err = f.driver.LoadItem(noteKind{}, "2", store.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if c := loaded.(*note).Cover; c == nil || c.Fetched() {
		t.Errorf("broken cover = %+v, want unfetched url", c)
	}
}

func TestDriver_DownloadItem(t *testing.T) {
	f, actions := newFixture(t, archive.Options{RelativeLinks: true})
	f.api.Handle("/api/notes/1", `{"id":"1","title":"t"}`)
	dest := filepath.Join(t.TempDir(), "links", "my-note")

	if _, err := f.driver.DownloadItem(context.Background(), noteKind{}, "1", dest); err != nil {
		t.Fatalf("DownloadItem() error = %v", err)
	}
	target, err := os.Readlink(dest)
	if err != nil {
		t.Fatalf("dest is not a symlink: %v", err)
	}
	if filepath.IsAbs(target) {
		t.Errorf("link target %q is absolute, want relative", target)
	}
	if _, err := os.Stat(filepath.Join(dest, "info")); err != nil {
		t.Errorf("link does not resolve to the item: %v", err)
	}

	// A second download reuses the item and the link.
	if _, err := f.driver.DownloadItem(context.Background(), noteKind{}, "1", dest); err != nil {
		t.Fatalf("second DownloadItem() error = %v", err)
	}
	if got := f.api.Hits("/api/notes/1"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if got := actions("note", "1"); !reflect.DeepEqual(got, []string{"get", "link", "link"}) {
		t.Errorf("history = %v", got)
	}
}

func TestDriver_Comments(t *testing.T) {
	thread := []string{
		`{"id":"11","reply_comment_id":"0","author":{"id":"a","name":"A"},"child_comment_count":0,"created_time":1,"content":"<p>one</p>"}`,
		`{"id":"12","reply_comment_id":"0","author":{"id":"b","name":"B"},"child_comment_count":0,"created_time":2,"content":"<p>two</p>"}`,
	}
	tests := []struct {
		name       string
		opts       archive.Options
		reply      string
		wantHits   int
		want       int
		// one pause after the root listing page and one after the whole thread
		wantPauses int
	}{
		{name: "enabled", opts: archive.Options{Comments: true}, reply: `{"id":"5","comment_count":2}`, wantHits: 1, want: 2, wantPauses: 2},
		{name: "disabled", opts: archive.Options{}, reply: `{"id":"5","comment_count":2}`, wantHits: 0, want: 0},
		{name: "no comments", opts: archive.Options{Comments: true}, reply: `{"id":"5","comment_count":0}`, wantHits: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newFixture(t, tt.opts)
			f.api.Handle("/api/notes/5", tt.reply)
			rootPath := "/api/v4/comment_v5/answers/5/root_comment"
			f.api.HandlePages(rootPath, thread)

			if _, err := f.driver.GetItem(context.Background(), noteKind{}, "5"); err != nil {
				t.Fatalf("GetItem() error = %v", err)
			}
			if got := f.api.Hits(rootPath); got != tt.wantHits {
				t.Errorf("root comment requests = %d, want %d", got, tt.wantHits)
			}
			if got := f.client.Pauses(); got != tt.wantPauses {
				t.Errorf("pauses = %d, want %d", got, tt.wantPauses)
			}
			loaded, err := f.driver.LoadItem(noteKind{}, "5", store.LoadOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if got := len(loaded.(*note).Comments); got != tt.want {
				t.Errorf("embedded comments = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDriver_CommentsFailure(t *testing.T) {
	f, _ := newFixture(t, archive.Options{Comments: true})
	f.api.Handle("/api/notes/5", `{"id":"5","comment_count":3}`)
	f.api.HandleStatus("/api/v4/comment_v5/answers/5/root_comment", http.StatusForbidden)

	_, err := f.driver.GetItem(context.Background(), noteKind{}, "5")
	var ie *archive.ItemError
	if !errors.As(err, &ie) || ie.Stage != archive.StageEnrich {
		t.Fatalf("GetItem() error = %v, want enrich ItemError", err)
	}
	var fe *comment.FetchError
	if !errors.As(err, &fe) || fe.Target != comment.TargetRoot {
		t.Errorf("error does not wrap the root comment failure: %v", err)
	}
	if f.store.InStore("note", "5") {
		t.Error("item stored although its thread failed")
	}
}

func noteEntry(id string) string {
	return fmt.Sprintf(`{"type":"note","id":%q,"title":"note %s"}`, id, id)
}

func TestDriver_GetContainer(t *testing.T) {
	f, _ := newFixture(t, archive.Options{})
	const listing = "/api/boards/b1/notes"
	f.api.HandlePages(listing,
		[]string{noteEntry("a"), `{"type":"ad","id":"x"}`},
		[]string{noteEntry("b")},
	)
	ctx := context.Background()

	items, err := f.driver.GetContainer(ctx, boardNotes{}, "b1")
	if err != nil {
		t.Fatalf("GetContainer() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("GetContainer() = %d items, want 2", len(items))
	}
	for _, ci := range items {
		if !ci.Processed {
			t.Errorf("%s/%s not processed on first fetch", ci.Item.Kind(), ci.Item.ObjectID())
		}
	}
	if f.reporter.entrySkipped != 1 {
		t.Errorf("skipped entries = %d, want 1", f.reporter.entrySkipped)
	}
	if got := f.api.Hits(listing); got != 2 {
		t.Errorf("listing requests = %d, want 2 pages", got)
	}
	if !f.store.ContainerFetched("board", "b1", "notes") {
		t.Error("container not marked fetched")
	}

	keys, err := f.driver.LoadContainer(boardNotes{}, "b1")
	if err != nil {
		t.Fatal(err)
	}
	want := []store.ItemKey{{Kind: "note", ID: "a"}, {Kind: "note", ID: "b"}}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("LoadContainer() = %v, want %v", keys, want)
	}
	if _, err := os.Stat(filepath.Join(f.store.ContainerPath("board", "b1", "notes"), "note", "a", "info")); err != nil {
		t.Errorf("entry link missing: %v", err)
	}

	before := f.api.Total()
	items, err = f.driver.GetContainer(ctx, boardNotes{}, "b1")
	if err != nil || items != nil {
		t.Errorf("second GetContainer() = %v, %v, want nil, nil", items, err)
	}
	if f.api.Total() != before {
		t.Error("second GetContainer() made requests")
	}
}

func TestDriver_UpdateContainer_Tombstones(t *testing.T) {
	f, actions := newFixture(t, archive.Options{})
	const listing = "/api/boards/b1/notes"
	ctx := context.Background()
	update := func(ids ...string) []archive.ContainerItem {
		t.Helper()
		var entries []string
		for _, id := range ids {
			entries = append(entries, noteEntry(id))
		}
		f.api.HandlePages(listing, entries)
		items, err := f.driver.UpdateContainer(ctx, boardNotes{}, "b1")
		if err != nil {
			t.Fatalf("UpdateContainer(%v) error = %v", ids, err)
		}
		return items
	}

	update("a", "b")
	items := update("a")
	if len(items) != 1 || items[0].Processed {
		t.Errorf("second pass items = %+v, want a single unprocessed entry", items)
	}

	info := f.store.ItemInfo("note", "b")
	if !info.InStore || info.OnServer {
		t.Errorf("note/b = %+v, want in store and gone from server", info)
	}
	if !f.store.ItemInfo("note", "a").OnServer {
		t.Error("note/a should still be on server")
	}
	keys, err := f.driver.LoadContainer(boardNotes{}, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Errorf("tombstoned entry dropped from the list: %v", keys)
	}
	if _, err := os.Lstat(filepath.Join(f.store.ContainerPath("board", "b1", "notes"), "note", "b")); err != nil {
		t.Errorf("tombstoned entry link removed: %v", err)
	}

	update("a")
	if got := actions("note", "b"); !reflect.DeepEqual(got, []string{"get", "tombstone"}) {
		t.Errorf("history of note/b = %v, want one tombstone", got)
	}

	update("a", "b")
	if !f.store.ItemInfo("note", "b").OnServer {
		t.Error("re-listed note/b not restored on server")
	}
	if !reflect.DeepEqual(f.reporter.tombstoned, []string{"note/b"}) {
		t.Errorf("tombstones reported = %v", f.reporter.tombstoned)
	}
}

func TestDriver_UpdateContainer_ReusesStoredItems(t *testing.T) {
	f, _ := newFixture(t, archive.Options{})
	ctx := context.Background()
	f.api.Handle("/api/notes/a", `{"id":"a","title":"direct"}`)
	if _, err := f.driver.GetItem(ctx, noteKind{}, "a"); err != nil {
		t.Fatal(err)
	}
	f.api.HandlePages("/api/boards/b1/notes", []string{noteEntry("a"), noteEntry("c")})

	items, err := f.driver.UpdateContainer(ctx, boardNotes{}, "b1")
	if err != nil {
		t.Fatalf("UpdateContainer() error = %v", err)
	}
	processed := map[string]bool{}
	for _, ci := range items {
		processed[ci.Item.ObjectID()] = ci.Processed
	}
	if processed["a"] || !processed["c"] {
		t.Errorf("processed = %v, want only c", processed)
	}
	loaded, err := f.driver.LoadItem(noteKind{}, "a", store.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if loaded.(*note).Title != "direct" {
		t.Errorf("stored item overwritten by the listing: %q", loaded.(*note).Title)
	}
}

func TestDriver_UpdateContainer_ListingError(t *testing.T) {
	f, _ := newFixture(t, archive.Options{})
	f.api.HandleStatus("/api/boards/b1/notes", http.StatusInternalServerError)

	_, err := f.driver.UpdateContainer(context.Background(), boardNotes{}, "b1")
	var ce *archive.ContainerError
	if !errors.As(err, &ce) {
		t.Fatalf("UpdateContainer() error = %v, want *ContainerError", err)
	}
	if ce.Stage != archive.StageFetch || ce.Relation != "notes" {
		t.Errorf("ContainerError = %+v", ce)
	}
	if f.store.ContainerFetched("board", "b1", "notes") {
		t.Error("failed container marked fetched")
	}
}

func TestDriver_DownloadContainer(t *testing.T) {
	f, _ := newFixture(t, archive.Options{})
	f.api.HandlePages("/api/boards/b1/notes", []string{noteEntry("a")})
	dest := filepath.Join(t.TempDir(), "out", "board")

	if _, err := f.driver.DownloadContainer(context.Background(), boardNotes{}, "b1", dest); err != nil {
		t.Fatalf("DownloadContainer() error = %v", err)
	}
	target, err := os.Readlink(dest)
	if err != nil {
		t.Fatalf("dest is not a symlink: %v", err)
	}
	if !filepath.IsAbs(target) {
		t.Errorf("link target = %q, want absolute", target)
	}
	if _, err := os.Stat(filepath.Join(dest, "note", "a", "info")); err != nil {
		t.Errorf("entry not reachable through the link: %v", err)
	}
}
