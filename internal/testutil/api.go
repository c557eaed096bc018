package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"webdl/internal/remote"
)

// FakeAPI serves canned replies by URL path and counts the requests it gets.
type FakeAPI struct {
	t      *testing.T
	srv    *httptest.Server
	mu     sync.Mutex
	routes map[string]route
	hits   map[string]int
	total  int
}

type route struct {
	code  int
	ctype string
	pages [][]byte
}

// NewFakeAPI starts a server that is shut down when the test completes.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	a := &FakeAPI{t: t, routes: map[string]route{}, hits: map[string]int{}}
	a.srv = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.srv.Close)
	return a
}

// URL returns the server root.
func (a *FakeAPI) URL() string { return a.srv.URL }

// Client returns a client for the server that does not pause between requests.
func (a *FakeAPI) Client() *remote.Client {
	a.t.Helper()
	c, err := remote.New(remote.Options{BaseURL: a.srv.URL})
	if err != nil {
		a.t.Fatalf("failed to create client: %v", err)
	}
	return c
}

// Handle answers path with a JSON body.
func (a *FakeAPI) Handle(path, body string) {
	a.set(path, route{code: http.StatusOK, ctype: "application/json", pages: [][]byte{[]byte(body)}})
}

// HandleStatus answers path with an error status.
func (a *FakeAPI) HandleStatus(path string, code int) {
	a.set(path, route{code: code, ctype: "text/plain", pages: [][]byte{[]byte(http.StatusText(code))}})
}

// HandleBytes answers path with raw data, e.g. an image.
func (a *FakeAPI) HandleBytes(path, contentType string, data []byte) {
	a.set(path, route{code: http.StatusOK, ctype: contentType, pages: [][]byte{data}})
}

// HandlePages answers path with a paginated listing. Each element of pages holds the
// JSON entries of one page; pages after the first are reached through next links.
func (a *FakeAPI) HandlePages(path string, pages ...[]string) {
	if len(pages) == 0 {
		pages = [][]string{nil}
	}
	bodies := make([][]byte, len(pages))
	for i, entries := range pages {
		last := i == len(pages)-1
		next := ""
		if !last {
			next = fmt.Sprintf("%s%s?page=%d", a.srv.URL, path, i+1)
		}
		bodies[i] = fmt.Appendf(nil, `{"data":[%s],"paging":{"is_end":%t,"totals":%d,"next":%q}}`,
			strings.Join(entries, ","), last, countEntries(pages), next)
	}
	a.set(path, route{code: http.StatusOK, ctype: "application/json", pages: bodies})
}

func countEntries(pages [][]string) int {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	return n
}

func (a *FakeAPI) set(path string, r route) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[path] = r
}

// Hits returns the number of requests for path, all pages included.
func (a *FakeAPI) Hits(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[path]
}

// Total returns the number of requests served.
func (a *FakeAPI) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Reset clears the request counters.
func (a *FakeAPI) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hits = map[string]int{}
	a.total = 0
}

func (a *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.hits[r.URL.Path]++
	a.total++
	rt, ok := a.routes[r.URL.Path]
	a.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n >= len(rt.pages) {
			http.NotFound(w, r)
			return
		}
		page = n
	}
	w.Header().Set("Content-Type", rt.ctype)
	w.WriteHeader(rt.code)
	w.Write(rt.pages[page])
}
