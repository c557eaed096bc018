package comment

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"webdl/internal/media"
	"webdl/internal/remote"
)

// RootType is the kind of item a comment thread hangs off.
type RootType string

const (
	RootAnswer     RootType = "answer"
	RootArticle    RootType = "article"
	RootCollection RootType = "collection"
	RootPin        RootType = "pin"
	RootQuestion   RootType = "question"
)

// ParseRootType validates s.
func ParseRootType(s string) (RootType, error) {
	switch r := RootType(s); r {
	case RootAnswer, RootArticle, RootCollection, RootPin, RootQuestion:
		return r, nil
	default:
		return "", fmt.Errorf("unknown comment root type %q", s)
	}
}

// Segment is the path segment the API uses for the root type.
func (r RootType) Segment() string {
	return string(r) + "s"
}

// imageSleepEvery is how many comments with images are fetched between two pauses.
const imageSleepEvery = 40

// RootURL lists the root comments of an item.
func RootURL(c *remote.Client, root RootType, id string) string {
	return c.URL(fmt.Sprintf("/api/v4/comment_v5/%s/%s/root_comment", root.Segment(), id))
}

// ChildURL lists the replies below a root comment.
func ChildURL(c *remote.Client, id string) string {
	return c.URL(fmt.Sprintf("/api/v4/comment_v5/comment/%s/child_comment", id))
}

// ItemURL fetches a single comment.
func ItemURL(c *remote.Client, id string) string {
	return c.URL(fmt.Sprintf("/api/v4/comment_v5/comment/%s", id))
}

// Target names which request of a thread fetch failed.
type Target string

const (
	TargetRoot    Target = "root"
	TargetChild   Target = "child"
	TargetComment Target = "comment"
)

// FetchError is a failed request while fetching a comment thread. The whole thread is
// discarded when it occurs.
type FetchError struct {
	Target   Target
	RootType RootType
	ID       string
	Err      error
}

func (e *FetchError) Error() string {
	switch e.Target {
	case TargetRoot:
		return fmt.Sprintf("fetching root comments of %s %s: %v", e.RootType, e.ID, e.Err)
	case TargetChild:
		return fmt.Sprintf("fetching child comments of %s: %v", e.ID, e.Err)
	default:
		return fmt.Sprintf("fetching comment %s: %v", e.ID, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ImageFetcher downloads the images of a comment and reports whether any was fetched.
type ImageFetcher interface {
	FetchImages(ctx context.Context, imgs []*media.Image) bool
}

// Fetch downloads the full thread of an item: every root comment, the replies of each
// root that has any, and then every ancestor the listings referenced but did not return.
// Missing ancestors are fetched one by one, smallest id first, until every parent id in
// the result is present. images may be nil.
func Fetch(ctx context.Context, c *remote.Client, images ImageFetcher, root RootType, id string) ([]*Comment, error) {
	var out []*Comment
	exist := make(map[uint64]struct{})
	add := func(cm *Comment) {
		if _, ok := exist[cm.Info.ID]; ok {
			return
		}
		exist[cm.Info.ID] = struct{}{}
		out = append(out, cm)
	}

	roots, err := c.GetPaged(ctx, RootURL(c, root, id), nil, nil)
	if err != nil {
		return nil, &FetchError{Target: TargetRoot, RootType: root, ID: id, Err: err}
	}
	rootComments := make([]*Comment, 0, len(roots))
	for _, data := range roots {
		cm, err := parseData(data)
		if err != nil {
			return nil, &FetchError{Target: TargetRoot, RootType: root, ID: id, Err: err}
		}
		rootComments = append(rootComments, cm)
		add(cm)
	}

	for _, rc := range rootComments {
		if !rc.HasChildren() {
			continue
		}
		cid := rc.ObjectID()
		children, err := c.GetPaged(ctx, ChildURL(c, cid), nil, nil)
		if err != nil {
			return nil, &FetchError{Target: TargetChild, RootType: root, ID: cid, Err: err}
		}
		for _, data := range children {
			cm, err := parseData(data)
			if err != nil {
				return nil, &FetchError{Target: TargetChild, RootType: root, ID: cid, Err: err}
			}
			add(cm)
		}
	}

	// Ancestors referenced by the result but never listed, kept sorted.
	var missing []uint64
	want := func(parent *uint64) {
		if parent == nil {
			return
		}
		if _, ok := exist[*parent]; ok {
			return
		}
		if i, found := slices.BinarySearch(missing, *parent); !found {
			missing = slices.Insert(missing, i, *parent)
		}
	}
	for _, cm := range out {
		want(cm.Info.ParentID)
	}
	for len(missing) > 0 {
		next := missing[0]
		missing = missing[1:]
		cid := strconv.FormatUint(next, 10)

		data, err := c.GetRaw(ctx, ItemURL(c, cid), nil)
		if err != nil {
			return nil, &FetchError{Target: TargetComment, RootType: root, ID: cid, Err: err}
		}
		if err := c.Sleep(ctx); err != nil {
			return nil, err
		}
		cm, err := parseData(data)
		if err != nil {
			return nil, &FetchError{Target: TargetComment, RootType: root, ID: cid, Err: err}
		}
		// The reply may carry a different id than asked for; count the asked id as known
		// so the loop always makes progress.
		exist[next] = struct{}{}
		add(cm)
		want(cm.Info.ParentID)
	}

	if images != nil {
		if err := fetchImages(ctx, c, images, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fetchImages fetches images comment by comment, pausing after every imageSleepEvery
// comments that had images.
func fetchImages(ctx context.Context, c *remote.Client, images ImageFetcher, comments []*Comment) error {
	withImages := 0
	for _, cm := range comments {
		imgs := media.Collect(cm)
		if len(imgs) == 0 {
			continue
		}
		images.FetchImages(ctx, imgs)
		withImages++
		if withImages%imageSleepEvery == 0 {
			if err := c.Sleep(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
