// Package archive orchestrates fetching items and container listings from the remote API
// into a store. Every operation is idempotent: items already in the store are reused, and
// re-running an interrupted operation completes it.
package archive

import (
	"context"
	"encoding/json"
	"errors"

	"webdl/internal/comment"
	"webdl/internal/remote"
	"webdl/internal/store"
)

// Kind is one item kind of a site: how to fetch it, parse it and reference it.
type Kind interface {
	// Name is the store kind, e.g. "answer".
	Name() string
	// Key checks a reference given by a user and returns the store id.
	Key(ref string) (string, error)
	// Fetch retrieves the raw reply for id.
	Fetch(ctx context.Context, c *remote.Client, id string) (json.RawMessage, error)
	// Parse builds an item from a raw reply.
	Parse(raw *store.RawData) (store.Object, error)
	// New returns an empty item to load from the store.
	New() store.Object
}

// Container is one listing relation: the children a kind of owner holds under a name.
// Entries may be of different kinds.
type Container interface {
	// Owner is the kind of the item the listing belongs to.
	Owner() string
	// Relation names the listing and its directory below the owner.
	Relation() string
	// FetchItems retrieves every entry of the listing of owner id.
	FetchItems(ctx context.Context, c *remote.Client, id string, onPage remote.PageFunc) ([]json.RawMessage, error)
	// ParseItem builds an item from one entry. Entries of kinds that are not archived
	// yield ErrSkipEntry.
	ParseItem(raw *store.RawData) (store.Object, error)
}

// ErrSkipEntry marks a listing entry that is deliberately not archived.
var ErrSkipEntry = errors.New("entry skipped")

// Registry resolves kinds and relations by name.
type Registry interface {
	Kind(name string) (Kind, error)
	Container(kind, relation string) (Container, error)
	// Relations lists the relation names of kind.
	Relations(kind string) []string
}

// Commentable is an item that can embed its comment thread.
type Commentable interface {
	store.Object
	// CommentRoot returns where the thread hangs off and whether the item has comments.
	CommentRoot() (comment.RootType, bool)
	// SetComments embeds a fetched thread. An empty thread clears the has-comments flag.
	SetComments(comments []*comment.Comment)
}

// Fetch event actions recorded in the history.
const (
	ActionGet       = "get"
	ActionUpdate    = "update"
	ActionLink      = "link"
	ActionTombstone = "tombstone"
)

// History records what happened to items.
type History interface {
	RecordFetch(kind, id, action string) error
}

// NopHistory discards every event.
type NopHistory struct{}

func (NopHistory) RecordFetch(string, string, string) error { return nil }

// ContainerItem is one entry of a fetched listing. Processed is false when the item was
// already in the store and only linked.
type ContainerItem struct {
	Item      store.Object
	Processed bool
}

// Options control what the driver fetches.
type Options struct {
	// Comments embeds the comment thread of commentable items.
	Comments bool
	// RelativeLinks makes destination links relative to their directory.
	RelativeLinks bool
}
