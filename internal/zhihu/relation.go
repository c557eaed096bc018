package zhihu

import (
	"context"
	"encoding/json"
	"fmt"

	"webdl/internal/archive"
	"webdl/internal/remote"
	"webdl/internal/store"
)

// RelationKind selects which listing of an owner a Relation fetches.
type RelationKind int

const (
	RelComment RelationKind = iota
	RelAnswer
	RelArticle
	RelItem
	RelRegular
	RelPinned
	RelChild
	RelCreatedCollection
	RelLikedCollection
	RelColumn
	RelPin
	RelQuestion
)

var relationNames = [...]string{
	RelComment:           "comment",
	RelAnswer:            "answer",
	RelArticle:           "article",
	RelItem:              "item",
	RelRegular:           "regular",
	RelPinned:            "pinned",
	RelChild:             "child",
	RelCreatedCollection: "created_collection",
	RelLikedCollection:   "liked_collection",
	RelColumn:            "column",
	RelPin:               "pin",
	RelQuestion:          "question",
}

func (r RelationKind) String() string {
	if r < 0 || int(r) >= len(relationNames) {
		return fmt.Sprintf("relation(%d)", int(r))
	}
	return relationNames[r]
}

// ParseRelationKind looks up a relation by name.
func ParseRelationKind(s string) (RelationKind, error) {
	for i, name := range relationNames {
		if name == s {
			return RelationKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRelation, s)
}

// Relation is one listing: the entries of kind item an owner holds under a relation.
// Each (owner, relation) pair of the site maps to one Relation.
type Relation struct {
	owner  string
	kind   RelationKind
	item   string
	url    func(c *remote.Client, id string) (string, error)
	parse  func(*store.RawData) (store.Object, error)
	signer remote.Signer
}

var _ archive.Container = (*Relation)(nil)

func (r *Relation) Owner() string              { return r.owner }
func (r *Relation) Relation() string           { return r.kind.String() }
func (r *Relation) RelationKind() RelationKind { return r.kind }

// Item is the kind of the entries, KindAny for mixed listings.
func (r *Relation) Item() string { return r.item }

// URL returns the first page of the listing of owner id.
func (r *Relation) URL(c *remote.Client, id string) (string, error) {
	return r.url(c, id)
}

func (r *Relation) FetchItems(ctx context.Context, c *remote.Client, id string, onPage remote.PageFunc) ([]json.RawMessage, error) {
	u, err := r.url(c, id)
	if err != nil {
		return nil, err
	}
	return c.GetPaged(ctx, u, r.signer, onPage)
}

func (r *Relation) ParseItem(raw *store.RawData) (store.Object, error) {
	return r.parse(raw)
}

func (r *Relation) String() string { return r.owner + "/" + r.kind.String() }
