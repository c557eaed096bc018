package archive

import (
	"context"
	"errors"

	"webdl/internal/comment"
	"webdl/internal/media"
	"webdl/internal/remote"
	"webdl/internal/store"
)

// Driver runs get, update and download for items and containers against one store.
// Requests are strictly sequential; the client spaces them out.
type Driver struct {
	store    *store.Store
	client   *remote.Client
	images   *media.Fetcher
	history  History
	reporter Reporter
	logger   Logger
	clock    Clock
	opts     Options
}

// NewDriver creates a Driver. images may be nil to skip image downloads; nil history,
// reporter, logger and clock fall back to no-op or real implementations.
func NewDriver(s *store.Store, client *remote.Client, images *media.Fetcher, history History, reporter Reporter, logger Logger, clock Clock, opts Options) *Driver {
	if history == nil {
		history = NopHistory{}
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Driver{
		store:    s,
		client:   client,
		images:   images,
		history:  history,
		reporter: reporter,
		logger:   logger,
		clock:    clock,
		opts:     opts,
	}
}

// Store returns the store the driver writes to.
func (d *Driver) Store() *store.Store { return d.store }

// GetItem fetches and stores kind/id unless it is already in the store, in which case it
// returns nil without any request.
func (d *Driver) GetItem(ctx context.Context, k Kind, id string) (store.Object, error) {
	if d.store.InStore(k.Name(), id) {
		d.reporter.Skipped(k.Name(), id)
		return nil, nil
	}
	return d.fetchItem(ctx, k, id, ActionGet)
}

// UpdateItem fetches and stores kind/id whether or not it is in the store.
func (d *Driver) UpdateItem(ctx context.Context, k Kind, id string) (store.Object, error) {
	return d.fetchItem(ctx, k, id, ActionUpdate)
}

// DownloadItem gets kind/id if needed and links its store directory to dest.
func (d *Driver) DownloadItem(ctx context.Context, k Kind, id, dest string) (store.Object, error) {
	item, err := d.GetItem(ctx, k, id)
	if err != nil {
		return nil, err
	}
	if err := d.link(d.store.ItemPath(k.Name(), id), dest); err != nil {
		return item, &ItemError{Kind: k.Name(), ID: id, Stage: StageLink, Err: err}
	}
	d.record(k.Name(), id, ActionLink)
	return item, nil
}

// LoadItem reads kind/id from the store.
func (d *Driver) LoadItem(k Kind, id string, opts store.LoadOptions) (store.Object, error) {
	item := k.New()
	if err := d.store.GetObject(item, id, opts); err != nil {
		return nil, err
	}
	return item, nil
}

func (d *Driver) fetchItem(ctx context.Context, k Kind, id, action string) (store.Object, error) {
	kind := k.Name()
	d.reporter.Fetching(kind, id)

	data, err := k.Fetch(ctx, d.client, id)
	if err != nil {
		return nil, &ItemError{Kind: kind, ID: id, Stage: StageFetch, Err: err}
	}
	item, err := k.Parse(store.NewRawData(data, d.clock.Now(), ""))
	if err != nil {
		return nil, &ItemError{Kind: kind, ID: id, Stage: StageParse, Err: err}
	}
	if err := d.process(ctx, item); err != nil {
		return nil, &ItemError{Kind: kind, ID: id, Stage: StageEnrich, Err: err}
	}
	if _, err := d.save(item, action); err != nil {
		return nil, err
	}
	return item, nil
}

// process enriches a parsed item: its comment thread when enabled, then its images.
func (d *Driver) process(ctx context.Context, item store.Object) error {
	kind, id := item.Kind(), item.ObjectID()
	if d.opts.Comments {
		if c, ok := item.(Commentable); ok {
			if root, has := c.CommentRoot(); has {
				comments, err := comment.Fetch(ctx, d.client, itemImages{d: d, kind: kind, id: id}, root, id)
				if err != nil {
					return err
				}
				c.SetComments(comments)
				d.logger.Debug("comments fetched", "kind", kind, "id", id, "count", len(comments))
				if err := d.client.Sleep(ctx); err != nil {
					return err
				}
			}
		}
	}
	if d.fetchImages(ctx, kind, id, media.Collect(item)) {
		return d.client.Sleep(ctx)
	}
	return nil
}

// save writes the item and its images, records the action and returns the item path.
func (d *Driver) save(item store.Object, action string) (string, error) {
	kind, id := item.Kind(), item.ObjectID()
	path, err := d.store.AddObject(item, true)
	if err != nil {
		return "", &ItemError{Kind: kind, ID: id, Stage: StageStore, Err: err}
	}
	if err := d.store.AddMedia(item); err != nil {
		return "", &ItemError{Kind: kind, ID: id, Stage: StageMedia, Err: err}
	}
	d.record(kind, id, action)
	d.reporter.Stored(kind, id, path)
	return path, nil
}

func (d *Driver) fetchImages(ctx context.Context, kind, id string, imgs []*media.Image) bool {
	if d.images == nil || len(imgs) == 0 {
		return false
	}
	changed, failures := d.images.FetchAll(ctx, imgs)
	for _, err := range failures {
		d.reporter.ImageFailed(kind, id, err)
	}
	return changed
}

// itemImages fetches comment images on behalf of the item owning the thread.
type itemImages struct {
	d        *Driver
	kind, id string
}

func (f itemImages) FetchImages(ctx context.Context, imgs []*media.Image) bool {
	return f.d.fetchImages(ctx, f.kind, f.id, imgs)
}

func (d *Driver) link(src, dest string) error {
	if err := store.LinkPath(src, dest, d.opts.RelativeLinks); err != nil {
		return err
	}
	d.reporter.Linked(src, dest)
	return nil
}

// record writes a history event. A failing history never fails the fetch.
func (d *Driver) record(kind, id, action string) {
	if err := d.history.RecordFetch(kind, id, action); err != nil {
		d.logger.Warn("recording history failed", "kind", kind, "id", id, "action", action, "error", err)
	}
}

func stageOf(err error, fallback Stage) Stage {
	var ie *ItemError
	if errors.As(err, &ie) {
		return ie.Stage
	}
	return fallback
}
