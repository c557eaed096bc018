package manifest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"webdl/internal/archive"
	"webdl/internal/comment"
	"webdl/internal/store"
)

const (
	userKind        = "user"
	commentRelation = "comment"
	childRelation   = "child"
)

// ApplyError is a failed manifest entry. Relation is set when one of the entry's
// listings failed.
type ApplyError struct {
	Kind     string
	Ref      string
	Relation string
	Err      error
}

func (e *ApplyError) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("manifest entry %s %s: %s: %v", e.Kind, e.Ref, e.Relation, e.Err)
	}
	return fmt.Sprintf("manifest entry %s %s: %v", e.Kind, e.Ref, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Runner drives an archive driver through the entries of a manifest.
type Runner struct {
	driver   *archive.Driver
	registry archive.Registry
	logger   archive.Logger
}

func NewRunner(d *archive.Driver, reg archive.Registry, logger archive.Logger) *Runner {
	if logger == nil {
		logger = archive.NewNopLogger()
	}
	return &Runner{driver: d, registry: reg, logger: logger}
}

// Apply gets every entry that is not stored yet and every listing its option follows
// that was never fetched, then recurses into the listings' entries. Stored items and
// listings are reused without a request.
func (r *Runner) Apply(ctx context.Context, n *Node) error {
	return r.run(ctx, n.MergedLeaf(), false)
}

// Update fetches every entry and every followed listing again.
func (r *Runner) Update(ctx context.Context, n *Node) error {
	return r.run(ctx, n.MergedLeaf(), true)
}

func (r *Runner) run(ctx context.Context, leaf Leaf, update bool) error {
	for _, kind := range sortedKeys(leaf) {
		k, err := r.registry.Kind(kind)
		if err != nil {
			return &ApplyError{Kind: kind, Err: err}
		}
		entries := leaf[kind]
		for _, ref := range sortedKeys(entries) {
			if err := ctx.Err(); err != nil {
				return err
			}
			opt := entries[ref]
			id, err := k.Key(entryRef(kind, ref, opt))
			if err != nil {
				return &ApplyError{Kind: kind, Ref: ref, Err: err}
			}
			if err := r.item(ctx, k, id, opt, update); err != nil {
				var ae *ApplyError
				if errors.As(err, &ae) {
					return err
				}
				return &ApplyError{Kind: kind, Ref: ref, Err: err}
			}
		}
	}
	return nil
}

// entryRef is the reference the kind's Key understands. User entries are keyed by url
// token and carry the id in their option.
func entryRef(kind, ref string, opt *Option) string {
	if kind == userKind && opt != nil {
		return opt.ID + ":" + ref
	}
	return ref
}

func (r *Runner) item(ctx context.Context, k archive.Kind, id string, opt *Option, update bool) error {
	s := r.driver.Store()
	if !s.ItemInfo(k.Name(), id).OnServer {
		r.logger.Info("skipping entry gone from server", "kind", k.Name(), "id", id)
		return nil
	}

	var (
		obj store.Object
		err error
	)
	if update {
		obj, err = r.driver.UpdateItem(ctx, k, id)
	} else {
		obj, err = r.driver.GetItem(ctx, k, id)
	}
	if err != nil {
		return err
	}
	if opt.Empty() {
		return nil
	}
	if obj == nil {
		// Already stored: the listings below need the stored record.
		if obj, err = r.driver.LoadItem(k, id, store.LoadOptions{}); err != nil {
			return fmt.Errorf("loading stored item: %w", err)
		}
	}
	return r.relations(ctx, obj, opt, update)
}

func (r *Runner) relations(ctx context.Context, obj store.Object, opt *Option, update bool) error {
	kind, id := obj.Kind(), obj.ObjectID()
	for _, rel := range opt.RelationNames() {
		fail := func(err error) error {
			var ae *ApplyError
			if errors.As(err, &ae) {
				return err
			}
			return &ApplyError{Kind: kind, Ref: id, Relation: rel, Err: err}
		}
		if !hasListing(obj, rel) {
			r.logger.Debug("listing is empty, not fetched", "kind", kind, "id", id, "relation", rel)
			continue
		}
		c, err := r.registry.Container(kind, rel)
		if err != nil {
			return fail(err)
		}
		if err := r.container(ctx, c, id, opt.Relations[rel], update); err != nil {
			return fail(err)
		}
	}
	return nil
}

func (r *Runner) container(ctx context.Context, c archive.Container, id string, child *Option, update bool) error {
	s := r.driver.Store()
	var (
		items []archive.ContainerItem
		err   error
	)
	switch {
	case update:
		items, err = r.driver.UpdateContainer(ctx, c, id)
	case s.ContainerFetched(c.Owner(), id, c.Relation()):
		r.logger.Debug("listing already fetched", "kind", c.Owner(), "id", id, "relation", c.Relation())
		if child.Empty() {
			return nil
		}
		items, err = r.stored(c, id)
	default:
		items, err = r.driver.GetContainer(ctx, c, id)
	}
	if err != nil {
		return err
	}
	if child.Empty() {
		return nil
	}
	for _, ci := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.ItemInfo(ci.Item.Kind(), ci.Item.ObjectID()).OnServer {
			continue
		}
		if err := r.relations(ctx, ci.Item, child, update); err != nil {
			return err
		}
	}
	return nil
}

// stored loads the entries of a fetched listing from the store. Tombstoned entries are
// left out.
func (r *Runner) stored(c archive.Container, id string) ([]archive.ContainerItem, error) {
	keys, err := r.driver.LoadContainer(c, id)
	if err != nil {
		return nil, fmt.Errorf("loading stored listing: %w", err)
	}
	s := r.driver.Store()
	items := make([]archive.ContainerItem, 0, len(keys))
	for _, key := range keys {
		if !s.ItemInfo(key.Kind, key.ID).OnServer {
			continue
		}
		k, err := r.registry.Kind(key.Kind)
		if err != nil {
			return nil, err
		}
		obj, err := r.driver.LoadItem(k, key.ID, store.LoadOptions{})
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", key, err)
		}
		items = append(items, archive.ContainerItem{Item: obj})
	}
	return items, nil
}

// hasListing reports whether obj may have entries under relation. Items that know they
// have no comments or replies are not asked for them.
func hasListing(obj store.Object, relation string) bool {
	switch relation {
	case commentRelation:
		if c, ok := obj.(archive.Commentable); ok {
			_, has := c.CommentRoot()
			return has
		}
	case childRelation:
		if c, ok := obj.(*comment.Comment); ok {
			return c.HasChildren()
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
