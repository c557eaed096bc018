package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"webdl/internal/archive"
	"webdl/internal/config"
	"webdl/internal/database"
	"webdl/internal/encryption"
	"webdl/internal/media"
	"webdl/internal/mirror"
	"webdl/internal/model"
	"webdl/internal/remote"
	"webdl/internal/store"
	"webdl/internal/zhihu"
)

// historyName is the mirror metadata name of the history database snapshot.
const historyName = "history.db"

// Options describes the command an App is created for.
type Options struct {
	// Operation names the CLI command, e.g. "get" or "manifest apply".
	Operation  string
	Parameters string
	Verbose    bool
	// Passphrase is asked for when the sealed session has to be opened.
	Passphrase func() (string, error)
}

// App is the application layer between the CLI and the archive driver.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw kind names and references, and saves the store, the session
// and the history snapshot on Close.
type App struct {
	cfg       *config.Config
	opts      Options
	db        *database.SQLiteDatabase
	store     *store.Store
	client    *remote.Client
	registry  *zhihu.Registry
	images    *media.Fetcher
	mirrors   []mirror.Mirror
	encryptor encryption.Encryptor
	logger    archive.Logger
	clock     archive.Clock
	op        *Operation
	logFile   *os.File

	sessionLoaded bool
}

// NewApp creates a fully wired App from the given config. The store must exist.
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	op := NewOperation(opts.Operation, opts.Parameters, archive.UUIDGenerator{})
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	sl, logFile, err := newLogger(cfg.LogDir, op.RunID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a = &App{
		cfg:     cfg,
		opts:    opts,
		logger:  &slogAdapter{l: sl},
		clock:   archive.RealClock{},
		op:      op,
		logFile: logFile,
	}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	sopts, algo, err := storeOptions(cfg.Store)
	if err != nil {
		return nil, err
	}

	a.db, err = database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := a.db.CheckMigrations(); err != nil {
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	for _, mc := range cfg.Mirrors {
		m, err := mirror.NewMirrorFromConfig(ctx, mc)
		if err != nil {
			return nil, fmt.Errorf("creating mirror %q: %w", mc.Name, err)
		}
		a.mirrors = append(a.mirrors, m)
	}
	if err := a.checkHistoryVersion(ctx); err != nil {
		return nil, err
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	a.store, err = store.Open(cfg.Store.SiteRoot(), sopts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a.client, err = remote.New(remote.Options{
		BaseURL:   cfg.Client.BaseURL,
		UserAgent: cfg.Client.UserAgent,
		Interval:  cfg.Client.RequestInterval.Std(),
		Timeout:   cfg.Client.Timeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	signer, err := remote.NewSigner(cfg.Client.Signer, cfg.Client.Headers)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	a.registry = zhihu.NewRegistry(signer)
	a.images = media.NewFetcher(a.client, algo)
	return a, nil
}

// checkHistoryVersion refuses to run when a mirror holds a newer history snapshot than
// the local database.
func (a *App) checkHistoryVersion(ctx context.Context) error {
	localMax, err := a.db.MaxOperationID()
	if err != nil {
		return fmt.Errorf("checking local history version: %w", err)
	}
	for _, m := range a.mirrors {
		remoteVersion, err := m.GetMetadataVersion(ctx, a.cfg.HostID, historyName)
		if err != nil {
			return fmt.Errorf("checking history version on %s: %w", m.Name(), err)
		}
		if remoteVersion > localMax {
			return fmt.Errorf("local history is behind mirror %s (local=%d, mirror=%d)", m.Name(), localMax, remoteVersion)
		}
	}
	return nil
}

// storeOptions turns the store config into store options and the media hash algorithm.
func storeOptions(cfg config.StoreConfig) (store.Options, media.Algorithm, error) {
	format, err := store.ParseFormat(cfg.Format)
	if err != nil {
		return store.Options{}, "", err
	}
	compression, err := store.ParseCompression(cfg.RawCompression)
	if err != nil {
		return store.Options{}, "", err
	}
	algo, err := media.ParseAlgorithm(cfg.Hash)
	if err != nil {
		return store.Options{}, "", err
	}
	return store.Options{Format: format, Compression: compression, MediaDir: cfg.MediaDir}, algo, nil
}

// InitStore creates an empty store for the configured site and returns its root.
func InitStore(cfg *config.Config) (string, error) {
	sopts, _, err := storeOptions(cfg.Store)
	if err != nil {
		return "", err
	}
	s, err := store.Create(cfg.Store.SiteRoot(), sopts)
	if err != nil {
		return "", fmt.Errorf("creating store: %w", err)
	}
	return s.Root(), s.Close()
}

// MigrateStore upgrades the configured store to the current layout.
func MigrateStore(cfg *config.Config) (store.MigrateStats, error) {
	sopts, algo, err := storeOptions(cfg.Store)
	if err != nil {
		return store.MigrateStats{}, err
	}
	return store.Migrate(cfg.Store.SiteRoot(), sopts, algo)
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for commands that fetch or link.
func (a *App) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(a.op.RunID, a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// driver persists the operation, opens the session and returns a driver recording its
// events under the operation. absolute overrides the configured relative links.
func (a *App) driver(ctx context.Context, absolute bool) (*archive.Driver, error) {
	if err := a.loadSession(ctx); err != nil {
		return nil, err
	}
	return a.newDriver(absolute)
}

// newDriver is driver without the session, for work that makes no request.
func (a *App) newDriver(absolute bool) (*archive.Driver, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	opts := archive.Options{
		Comments:      a.cfg.Driver.Comments,
		RelativeLinks: a.cfg.Driver.RelativeLinks && !absolute,
	}
	return archive.NewDriver(a.store, a.client, a.images, a.db.ForOperation(a.op.ID),
		archive.NewLogReporter(a.logger), a.logger, a.clock, opts), nil
}

// resolve looks up the kind and turns ref into its store id.
func (a *App) resolve(kind, ref string) (archive.Kind, string, error) {
	k, err := a.registry.Kind(kind)
	if err != nil {
		return nil, "", err
	}
	id, err := k.Key(ref)
	if err != nil {
		return nil, "", fmt.Errorf("%s reference %q: %w", kind, ref, err)
	}
	return k, id, nil
}

// GetItem fetches and stores an item unless it is stored already. It returns nil for a
// stored item.
func (a *App) GetItem(ctx context.Context, kind, ref string) (store.Object, error) {
	k, id, err := a.resolve(kind, ref)
	if err != nil {
		return nil, err
	}
	d, err := a.driver(ctx, false)
	if err != nil {
		return nil, err
	}
	return d.GetItem(ctx, k, id)
}

// UpdateItem fetches and stores an item again.
func (a *App) UpdateItem(ctx context.Context, kind, ref string) (store.Object, error) {
	k, id, err := a.resolve(kind, ref)
	if err != nil {
		return nil, err
	}
	d, err := a.driver(ctx, false)
	if err != nil {
		return nil, err
	}
	return d.UpdateItem(ctx, k, id)
}

// DownloadItem gets an item and links it at dest.
func (a *App) DownloadItem(ctx context.Context, kind, ref, dest string, absolute bool) (store.Object, error) {
	k, id, err := a.resolve(kind, ref)
	if err != nil {
		return nil, err
	}
	d, err := a.driver(ctx, absolute)
	if err != nil {
		return nil, err
	}
	return d.DownloadItem(ctx, k, id, dest)
}

func (a *App) container(kind, ref, relation string) (archive.Container, string, error) {
	_, id, err := a.resolve(kind, ref)
	if err != nil {
		return nil, "", err
	}
	c, err := a.registry.Container(kind, relation)
	if err != nil {
		return nil, "", err
	}
	return c, id, nil
}

// GetContainer fetches a listing unless it was fetched before, in which case it returns nil.
func (a *App) GetContainer(ctx context.Context, kind, ref, relation string) ([]archive.ContainerItem, error) {
	c, id, err := a.container(kind, ref, relation)
	if err != nil {
		return nil, err
	}
	d, err := a.driver(ctx, false)
	if err != nil {
		return nil, err
	}
	return d.GetContainer(ctx, c, id)
}

// UpdateContainer fetches a listing again.
func (a *App) UpdateContainer(ctx context.Context, kind, ref, relation string) ([]archive.ContainerItem, error) {
	c, id, err := a.container(kind, ref, relation)
	if err != nil {
		return nil, err
	}
	d, err := a.driver(ctx, false)
	if err != nil {
		return nil, err
	}
	return d.UpdateContainer(ctx, c, id)
}

// DownloadContainer fetches a listing and links the listing directory at dest.
func (a *App) DownloadContainer(ctx context.Context, kind, ref, relation, dest string, absolute bool) ([]archive.ContainerItem, error) {
	c, id, err := a.container(kind, ref, relation)
	if err != nil {
		return nil, err
	}
	d, err := a.driver(ctx, absolute)
	if err != nil {
		return nil, err
	}
	return d.DownloadContainer(ctx, c, id, dest)
}

// Relations lists the listing relations of kind.
func (a *App) Relations(kind string) []string {
	return a.registry.Relations(kind)
}

// Kinds lists the item kinds of the site.
func (a *App) Kinds() []string {
	return a.registry.Kinds()
}

// StoreStatus summarizes the opened store.
type StoreStatus struct {
	Root     string
	MediaDir string
	Version  store.Version
	Counts   []store.KindCounts
}

func (a *App) StoreStatus() StoreStatus {
	return StoreStatus{
		Root:     a.store.Root(),
		MediaDir: a.store.MediaDir(),
		Version:  a.store.Version(),
		Counts:   a.store.Counts(),
	}
}

// Unreferenced lists the media pool files no stored item refers to. Nothing is deleted.
func (a *App) Unreferenced() ([]string, error) {
	refs := media.NewRefSet()
	if err := a.store.CollectRefs(refs, a.registry.New); err != nil {
		return nil, fmt.Errorf("collecting image references: %w", err)
	}
	return refs.Unreferenced(a.store.MediaDir())
}

// PushResult is what pushing the pool did on one mirror.
type PushResult struct {
	Mirror string
	Stats  mirror.PushStats
}

// PushMedia copies the pool files each mirror lacks.
func (a *App) PushMedia(ctx context.Context) ([]PushResult, error) {
	if len(a.mirrors) == 0 {
		return nil, fmt.Errorf("no mirrors configured")
	}
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	var results []PushResult
	for _, m := range a.mirrors {
		stats, err := mirror.Push(ctx, m, a.store.MediaDir())
		if err != nil {
			return results, fmt.Errorf("pushing to %s: %w", m.Name(), err)
		}
		a.logger.Info("pushed media", "mirror", m.Name(), "uploaded", stats.Uploaded, "present", stats.Present, "bytes", stats.Bytes)
		results = append(results, PushResult{Mirror: m.Name(), Stats: stats})
	}
	return results, nil
}

// GetHistory returns the most recent operations.
func (a *App) GetHistory(limit int) ([]*model.Operation, error) {
	return a.db.ListOperations(limit)
}

// ItemHistory returns what operations did to an item.
func (a *App) ItemHistory(kind, ref string) ([]*model.FetchEvent, error) {
	_, id, err := a.resolve(kind, ref)
	if err != nil {
		return nil, err
	}
	return a.db.ItemHistory(kind, id)
}

// Fail marks the operation as failed.
func (a *App) Fail() {
	a.op.Status = statusError
}

// Close saves the store and the session, then finalizes the operation and closes all
// resources. For persisted operations the history database is snapshotted and uploaded
// to every mirror, versioned by the operation ID.
func (a *App) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.store != nil {
		if err := a.store.Save(); err != nil {
			keep(fmt.Errorf("saving store: %w", err))
			a.op.Status = statusError
		}
	}
	if a.sessionLoaded {
		keep(a.saveSession())
	}

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
		snapshot, err := a.snapshotHistory()
		keep(err)
		if snapshot != "" {
			defer os.Remove(snapshot)
		}
		keep(a.release())
		if snapshot != "" {
			keep(a.uploadHistory(snapshot))
		}
		return firstErr
	}

	keep(a.release())
	return firstErr
}

// release closes the store, the database and the log file.
func (a *App) release() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
		a.store = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
		a.db = nil
	}
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
	return firstErr
}

// snapshotHistory copies the history database to a temp file and returns its path.
// Without mirrors there is nothing to upload and no snapshot is taken.
func (a *App) snapshotHistory() (string, error) {
	if len(a.mirrors) == 0 {
		return "", nil
	}
	tmp, err := os.CreateTemp("", "webdl-history-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for history snapshot: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses an existing file.
	os.Remove(path)
	if err := a.db.BackupTo(path); err != nil {
		return "", fmt.Errorf("snapshotting history: %w", err)
	}
	return path, nil
}

// uploadHistory uploads the snapshot to every mirror as metadata.
func (a *App) uploadHistory(path string) error {
	var firstErr error
	for _, m := range a.mirrors {
		if err := a.uploadMetadata(m, path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) uploadMetadata(m mirror.Mirror, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening history snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat history snapshot: %w", err)
	}

	if err := m.PutMetadata(context.Background(), a.cfg.HostID, historyName, f, info.Size(), a.op.ID); err != nil {
		return fmt.Errorf("uploading history to %s: %w", m.Name(), err)
	}
	return nil
}
