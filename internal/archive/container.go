package archive

import (
	"context"
	"errors"

	"webdl/internal/store"
)

// FetchContainer retrieves every entry of the listing c of owner id as raw snapshots.
func (d *Driver) FetchContainer(ctx context.Context, c Container, id string) ([]*store.RawData, error) {
	d.reporter.Fetching(c.Owner()+"/"+c.Relation(), id)
	entries, err := c.FetchItems(ctx, d.client, id, func(total *int64, n int) {
		d.reporter.Page(c.Owner(), id, c.Relation(), total, n)
	})
	if err != nil {
		return nil, &ContainerError{Kind: c.Owner(), ID: id, Relation: c.Relation(), Stage: StageFetch, Err: err}
	}
	now := d.clock.Now()
	source := c.Owner() + "/" + id + "/" + c.Relation()
	raws := make([]*store.RawData, 0, len(entries))
	for _, e := range entries {
		raws = append(raws, store.NewRawData(e, now, source))
	}
	return raws, nil
}

// GetContainer fetches the listing unless it was fetched before, in which case it
// returns nil without any request.
func (d *Driver) GetContainer(ctx context.Context, c Container, id string) ([]ContainerItem, error) {
	if d.store.ContainerFetched(c.Owner(), id, c.Relation()) {
		d.reporter.Skipped(c.Owner()+"/"+c.Relation(), id)
		return nil, nil
	}
	return d.UpdateContainer(ctx, c, id)
}

// UpdateContainer fetches the listing and stores every entry that is not in the store
// yet. Every entry is then linked below the container, entries of the previous listing
// that are gone are tombstoned, and the new list is persisted.
func (d *Driver) UpdateContainer(ctx context.Context, c Container, id string) ([]ContainerItem, error) {
	fail := func(stage Stage, itemID string, err error) error {
		return &ContainerError{Kind: c.Owner(), ID: id, Relation: c.Relation(), ItemID: itemID, Stage: stage, Err: err}
	}

	raws, err := d.FetchContainer(ctx, c, id)
	if err != nil {
		return nil, err
	}

	items := make([]ContainerItem, 0, len(raws))
	for _, raw := range raws {
		item, err := c.ParseItem(raw)
		if errors.Is(err, ErrSkipEntry) {
			d.reporter.EntrySkipped(c.Owner(), id, c.Relation(), err)
			continue
		}
		if err != nil {
			return nil, fail(StageParse, "", err)
		}
		kind, itemID := item.Kind(), item.ObjectID()
		if d.store.InStore(kind, itemID) {
			d.reporter.Skipped(kind, itemID)
			items = append(items, ContainerItem{Item: item})
			continue
		}
		if err := d.process(ctx, item); err != nil {
			return nil, fail(StageEnrich, itemID, err)
		}
		if _, err := d.save(item, ActionGet); err != nil {
			return nil, fail(stageOf(err, StageStore), itemID, err)
		}
		items = append(items, ContainerItem{Item: item, Processed: true})
	}

	h, err := d.store.AddContainer(c.Owner(), id, c.Relation())
	if err != nil {
		return nil, fail(StageStore, "", err)
	}
	for _, ci := range items {
		if err := h.LinkItem(ci.Item.Kind(), ci.Item.ObjectID()); err != nil {
			return nil, fail(StageLink, ci.Item.ObjectID(), err)
		}
	}
	gone, err := h.MarkMissing()
	if err != nil {
		return nil, fail(StageStore, "", err)
	}
	for _, k := range gone {
		d.reporter.Tombstoned(k.Kind, k.ID)
		d.record(k.Kind, k.ID, ActionTombstone)
	}
	if _, err := h.Finish(); err != nil {
		return nil, fail(StageStore, "", err)
	}
	d.logger.Info("container updated", "kind", c.Owner(), "id", id, "relation", c.Relation(),
		"entries", len(items), "gone", len(gone))
	return items, nil
}

// DownloadContainer gets the listing if needed and links the container directory to dest.
func (d *Driver) DownloadContainer(ctx context.Context, c Container, id, dest string) ([]ContainerItem, error) {
	items, err := d.GetContainer(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if err := d.link(d.store.ContainerPath(c.Owner(), id, c.Relation()), dest); err != nil {
		return items, &ContainerError{Kind: c.Owner(), ID: id, Relation: c.Relation(), Stage: StageLink, Err: err}
	}
	return items, nil
}

// LoadContainer returns the stored entries of a listing, tombstoned ones included.
func (d *Driver) LoadContainer(c Container, id string) ([]store.ItemKey, error) {
	list, err := d.store.GetContainer(c.Owner(), id, c.Relation())
	if err != nil {
		return nil, err
	}
	return list.Keys(), nil
}
