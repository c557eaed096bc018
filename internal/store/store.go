package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"webdl/internal/media"
)

const (
	versionFile  = "version"
	objectsFile  = "objects"
	itemListFile = "item_list"
	infoDir      = "info"
	rawDataDir   = "raw_data"
	lockFile     = ".lock"
)

// Object is a record the store can persist. StoreTo and LoadFrom are the explicit
// per-kind field table: each kind names the records it writes into its info directory.
type Object interface {
	media.HasImage
	Kind() string
	ObjectID() string
	Version() Version
	StoreTo(d *Dir) error
	LoadFrom(d *Dir, opts LoadOptions) error
}

// LoadOptions controls what GetObject reads besides the record fields.
type LoadOptions struct {
	// Raw also loads the raw API snapshot.
	Raw bool
	// Media fills image bytes from the pool.
	Media bool
}

// Options configures a Store.
type Options struct {
	Format      Format
	Compression Compression
	// MediaDir is the media pool. Defaults to <root>/media.
	MediaDir string
}

// Store is one site's archive on disk: versioned object records, container item lists,
// the info table, and the media pool. A Store is owned by one goroutine; the lock file
// keeps other processes out.
type Store struct {
	root     string
	mediaDir string
	opts     Options
	version  Version
	objects  ObjectInfo
	dirty    bool
	lock     *flock.Flock
	storer   *media.Storer
	loader   *media.Loader
}

func newStore(root string, opts Options) *Store {
	mediaDir := opts.MediaDir
	if mediaDir == "" {
		mediaDir = filepath.Join(root, "media")
	}
	return &Store{
		root:     root,
		mediaDir: mediaDir,
		opts:     opts,
		version:  StoreVersion,
		objects:  make(ObjectInfo),
		lock:     flock.New(filepath.Join(root, lockFile)),
		storer:   media.NewStorer(mediaDir),
		loader:   media.NewLoader(mediaDir),
	}
}

func (s *Store) acquire() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring store lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Create initializes an empty store at root. It fails if a store already exists there.
func Create(root string, opts Options) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &FsError{Op: OpCreateDir, Path: root, Err: err}
	}
	s := newStore(root, opts)
	if s.meta().Has(versionFile) {
		return nil, fmt.Errorf("store already exists at %s", root)
	}
	if err := os.MkdirAll(s.mediaDir, 0755); err != nil {
		return nil, &FsError{Op: OpCreateDir, Path: s.mediaDir, Err: err}
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	s.dirty = true
	if err := s.Save(); err != nil {
		s.lock.Unlock()
		return nil, err
	}
	return s, nil
}

// Open loads the store at root. An incompatible on-disk version is a VersionMismatchError;
// run Migrate first.
func Open(root string, opts Options) (*Store, error) {
	s := newStore(root, opts)
	if !s.meta().Has(versionFile) {
		return nil, fmt.Errorf("no store at %s: %w", root, fs.ErrNotExist)
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		s.lock.Unlock()
		return nil, err
	}
	if err := os.MkdirAll(s.mediaDir, 0755); err != nil {
		s.lock.Unlock()
		return nil, &FsError{Op: OpCreateDir, Path: s.mediaDir, Err: err}
	}
	return s, nil
}

func (s *Store) load() error {
	m := s.meta()
	var v Version
	if err := m.Get(versionFile, &v); err != nil {
		return err
	}
	if err := Check(StoreVersion, v); err != nil {
		return err
	}
	s.version = v
	objects := make(ObjectInfo)
	if m.Has(objectsFile) {
		if err := m.Get(objectsFile, &objects); err != nil {
			return err
		}
	}
	if objects == nil {
		objects = make(ObjectInfo)
	}
	s.objects = objects
	return nil
}

// meta is the Dir holding version.yaml and objects.yaml. They are always YAML.
func (s *Store) meta() *Dir {
	return NewDir(s.root, FormatYAML, CompressionNone)
}

// Save flushes the version stamp and the info table. It is never called implicitly.
func (s *Store) Save() error {
	if !s.dirty {
		return nil
	}
	m := s.meta()
	if err := m.Put(versionFile, s.version); err != nil {
		return err
	}
	if err := m.Put(objectsFile, s.objects); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close releases the store lock. Unsaved info table changes are discarded.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

func (s *Store) Root() string     { return s.root }
func (s *Store) MediaDir() string { return s.mediaDir }
func (s *Store) Dirty() bool      { return s.dirty }
func (s *Store) Version() Version { return s.version }

// MediaStats returns the pool writes and links made since the store was opened.
func (s *Store) MediaStats() media.Stats { return s.storer.Stats() }

// ItemPath is the canonical directory of an item.
func (s *Store) ItemPath(kind, id string) string {
	return filepath.Join(s.root, kind, id)
}

// ContainerPath is the directory of one of an item's containers.
func (s *Store) ContainerPath(kind, id, relation string) string {
	return filepath.Join(s.root, kind, id, relation)
}

func (s *Store) infoDir(kind, id string) *Dir {
	return NewDir(filepath.Join(s.ItemPath(kind, id), infoDir), s.opts.Format, s.opts.Compression)
}

// GetObject loads the record of obj's kind with the given id into obj. It reads the
// canonical path only; the info table is neither consulted nor changed.
func (s *Store) GetObject(obj Object, id string, opts LoadOptions) error {
	d := s.infoDir(obj.Kind(), id)
	var v Version
	if err := d.Get(versionFile, &v); err != nil {
		return Chain(obj.Kind()+"/"+id, err)
	}
	if err := Check(obj.Version(), v); err != nil {
		return Chain(obj.Kind()+"/"+id, err)
	}
	if err := obj.LoadFrom(d, opts); err != nil {
		return Chain(obj.Kind()+"/"+id, err)
	}
	if opts.Media {
		if err := media.LoadImages(s.loader, obj); err != nil {
			return Chain(obj.Kind()+"/"+id, err)
		}
	}
	return nil
}

// AddObject writes obj to its canonical path, then records it as in store with the given
// on_server flag. It returns the item path. The info table is only updated after every
// record was written.
func (s *Store) AddObject(obj Object, onServer bool) (string, error) {
	kind, id := obj.Kind(), obj.ObjectID()
	d := s.infoDir(kind, id)
	if err := d.ensure(); err != nil {
		return "", Chain(kind+"/"+id, err)
	}
	if err := d.Put(versionFile, obj.Version()); err != nil {
		return "", Chain(kind+"/"+id, err)
	}
	if err := obj.StoreTo(d); err != nil {
		return "", Chain(kind+"/"+id, err)
	}
	st := s.objects.ensure(kind, id)
	st.InStore = true
	st.OnServer = onServer
	s.dirty = true
	return s.ItemPath(kind, id), nil
}

// RawDir is where an object keeps its raw API snapshot.
func RawDir(d *Dir) *Dir { return d.Sub(rawDataDir) }

// AddMedia writes every fetched image of obj that still carries bytes into the pool.
func (s *Store) AddMedia(obj Object) error {
	return Chain(obj.Kind()+"/"+obj.ObjectID(), media.StoreImages(s.storer, obj))
}

// InStore reports whether a complete record for kind/id exists.
func (s *Store) InStore(kind, id string) bool {
	return s.ItemInfo(kind, id).InStore
}

// ItemInfo returns the status of kind/id, DefaultItemInfo when unknown.
func (s *Store) ItemInfo(kind, id string) ItemInfo {
	if st := s.objects.get(kind, id); st != nil {
		return st.ItemInfo
	}
	return DefaultItemInfo
}

// SetOnServer updates the on_server flag of a known item.
func (s *Store) SetOnServer(kind, id string, onServer bool) {
	st := s.objects.get(kind, id)
	if st == nil || st.OnServer == onServer {
		return
	}
	st.OnServer = onServer
	s.dirty = true
}

// ContainerFetched reports whether the container was fetched at least once.
func (s *Store) ContainerFetched(kind, id, relation string) bool {
	st := s.objects.get(kind, id)
	return st != nil && st.Containers[relation]
}

func (s *Store) setContainerFetched(kind, id, relation string) {
	st := s.objects.ensure(kind, id)
	if st.Containers == nil {
		st.Containers = make(map[string]bool)
	}
	st.Containers[relation] = true
	s.dirty = true
}

// Objects returns the info table. Callers must not modify it.
func (s *Store) Objects() ObjectInfo { return s.objects }

// GetContainer loads the stored item list of a container. A container that was never
// fetched has an empty list.
func (s *Store) GetContainer(kind, id, relation string) (*ItemList, error) {
	list := NewItemList()
	d := NewDir(s.ContainerPath(kind, id, relation), FormatYAML, CompressionNone)
	if !d.Has(itemListFile) {
		return list, nil
	}
	if err := d.Get(itemListFile, list); err != nil {
		return nil, Chain(kind+"/"+id+"/"+relation, err)
	}
	return list, nil
}

// AddContainer opens a handle over a container's item list, creating its directory.
func (s *Store) AddContainer(kind, id, relation string) (*ContainerHandle, error) {
	old, err := s.GetContainer(kind, id, relation)
	if err != nil {
		return nil, err
	}
	path := s.ContainerPath(kind, id, relation)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, &FsError{Op: OpCreateDir, Path: path, Err: err}
	}
	return &ContainerHandle{
		store:    s,
		kind:     kind,
		id:       id,
		relation: relation,
		path:     path,
		items:    old.Clone(),
		absent:   old.Clone(),
	}, nil
}

// Counts summarizes the info table per kind.
func (s *Store) Counts() []KindCounts {
	var out []KindCounts
	for _, kind := range s.objects.Kinds() {
		c := KindCounts{Kind: kind}
		for _, st := range s.objects[kind] {
			c.Total++
			if st.InStore {
				c.InStore++
			}
			if !st.OnServer {
				c.Tombstoned++
			}
			for _, fetched := range st.Containers {
				if fetched {
					c.Containers++
				}
			}
		}
		out = append(out, c)
	}
	return out
}

// CollectRefs adds the images of every in-store object to r. newObject returns an empty
// object for a kind, or nil for kinds without images.
func (s *Store) CollectRefs(r *media.RefSet, newObject func(kind string) Object) error {
	for _, kind := range s.objects.Kinds() {
		for _, id := range s.objects.IDs(kind) {
			if !s.objects[kind][id].InStore {
				continue
			}
			obj := newObject(kind)
			if obj == nil {
				continue
			}
			if err := s.GetObject(obj, id, LoadOptions{}); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return err
			}
			media.CollectRefs(r, obj)
		}
	}
	return nil
}
