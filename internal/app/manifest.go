package app

import (
	"context"

	"webdl/internal/manifest"
)

// ApplyManifest gets every entry of the manifest at path and the listings it follows.
// With update everything is fetched again.
func (a *App) ApplyManifest(ctx context.Context, path string, update bool) error {
	n, err := manifest.Load(path)
	if err != nil {
		return err
	}
	d, err := a.driver(ctx, false)
	if err != nil {
		return err
	}
	r := manifest.NewRunner(d, a.registry, a.logger)
	if update {
		return r.Update(ctx, n)
	}
	return r.Apply(ctx, n)
}

// LinkManifest mirrors the manifest tree at path below dest with links into the store.
// It makes no request.
func (a *App) LinkManifest(path, dest string) (int, error) {
	n, err := manifest.Load(path)
	if err != nil {
		return 0, err
	}
	d, err := a.newDriver(false)
	if err != nil {
		return 0, err
	}
	return manifest.NewRunner(d, a.registry, a.logger).Link(n, dest, a.cfg.Store.Site)
}
