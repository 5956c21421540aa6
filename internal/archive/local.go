package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local writes artifacts below a base directory
type Local struct {
	dir string
}

// NewLocal creates a writer rooted at dir, "./runs" when empty
func NewLocal(dir string) *Local {
	if dir == "" {
		dir = "./runs"
	}
	return &Local{dir: dir}
}

// Put writes data to dir/key, creating parent directories
func (l *Local) Put(_ context.Context, key string, data []byte, contentType string) (Object, error) {
	full := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return Object{}, fmt.Errorf("write file: %w", err)
	}
	return Object{
		URI:         "file://" + full,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: contentType,
	}, nil
}
