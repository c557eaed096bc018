package mirror

import (
	"context"
	"fmt"

	"webdl/internal/config"
)

// NewMirrorFromConfig creates the Mirror named by the mirror config type.
func NewMirrorFromConfig(ctx context.Context, cfg config.MirrorConfig) (Mirror, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryMirror(cfg.Name), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem mirror %q requires fs_root", cfg.Name)
		}
		return NewFileSystemMirror(cfg.Name, cfg.FSRoot)
	case "s3":
		return NewS3MirrorFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown mirror type: %s", cfg.Type)
	}
}
