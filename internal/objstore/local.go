package objstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type LocalOption func(*Local)

func LocalWithLogger(l *zap.Logger) LocalOption {
	return func(r *Local) {
		r.logger = l
	}
}

// Local serves report files from a directory on disk. Used for development
// and deployments where reports are dropped in by hand instead of synced
// from a bucket.
type Local struct {
	logger *zap.Logger
	root   string
}

func NewLocal(root string, opts ...LocalOption) *Local {
	r := &Local{
		logger: zap.NewNop(),
		root:   root,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List walks the directory and returns relative paths of report files,
// filtered the same way as bucket keys.
func (r *Local) List(ctx context.Context) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return err
		}
		if eligibleKey(rel) {
			keys = append(keys, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.root, err)
	}

	r.logger.Debug("listed local report files",
		zap.String("root", r.root),
		zap.Int("keys", len(keys)),
	)

	return keys, nil
}

// Get reads one report file's bytes.
func (r *Local) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(r.root, key))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}
