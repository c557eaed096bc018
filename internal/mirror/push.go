package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"webdl/internal/media"
)

// PushStats counts what Push did.
type PushStats struct {
	Uploaded int
	Present  int
	Bytes    int64
}

// Push uploads every pool file of dir that the mirror does not hold yet. Extension
// aliases are hardlinks of a pool file and are not uploaded; names that are not pool
// names are ignored. Files are visited in name order.
func Push(ctx context.Context, m Mirror, dir string) (PushStats, error) {
	var stats PushStats
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats, fmt.Errorf("reading pool: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ext, err := media.ParseName(e.Name()); err != nil || ext != "" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		has, err := m.HasBlob(ctx, name)
		if err != nil {
			return stats, fmt.Errorf("checking %s: %w", name, err)
		}
		if has {
			stats.Present++
			continue
		}
		n, err := pushFile(ctx, m, filepath.Join(dir, name), name)
		if err != nil {
			return stats, err
		}
		stats.Uploaded++
		stats.Bytes += n
	}
	return stats, nil
}

func pushFile(ctx context.Context, m Mirror, path, name string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := m.PutBlob(ctx, name, f, info.Size()); err != nil {
		return 0, fmt.Errorf("uploading %s: %w", name, err)
	}
	return info.Size(), nil
}
