package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opensource-finance/merlin/internal/domain"
)

// DirSource reads artifacts from <dir>/<name>.json.
type DirSource struct {
	dir string
}

// NewDirSource creates a directory source. The directory must exist.
func NewDirSource(dir string) (*DirSource, error) {
	if dir == "" {
		dir = "./models"
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open model directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model directory %s is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

// Fetch reads an artifact file.
func (s *DirSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Path returns the file an artifact is read from.
func (s *DirSource) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Ping checks the directory is still there.
func (s *DirSource) Ping(ctx context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

// Close is a no-op.
func (s *DirSource) Close() error {
	return nil
}
