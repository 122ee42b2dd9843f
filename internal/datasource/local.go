// Package datasource adapts existing stores to the bridge's chunk pull interface.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fruitsalade/cloudbridge/internal/cfbridge"
)

// ErrInvalidPath is returned for paths escaping the source root.
var ErrInvalidPath = errors.New("datasource: invalid path")

// LocalSource serves placeholders from a directory mirror.
type LocalSource struct {
	root string
}

// NewLocalSource returns a source rooted at dir, which must exist.
func NewLocalSource(dir string) (*LocalSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat source root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", abs)
	}
	return &LocalSource{root: abs}, nil
}

// Root returns the absolute directory served.
func (s *LocalSource) Root() string { return s.root }

// Pull reads up to req.MaxLength bytes at req.Offset.
func (s *LocalSource) Pull(ctx context.Context, req cfbridge.ChunkRequest) cfbridge.ChunkResponse {
	if err := ctx.Err(); err != nil {
		return cfbridge.ChunkResponse{Err: err}
	}
	full, err := s.resolve(req.Path)
	if err != nil {
		return cfbridge.ChunkResponse{Err: err}
	}
	if req.MaxLength <= 0 || req.Offset < 0 {
		return cfbridge.ChunkResponse{Err: fmt.Errorf("read %s [%d,+%d): %w", req.Path, req.Offset, req.MaxLength, cfbridge.ErrInvalidParam)}
	}

	f, err := os.Open(full)
	if err != nil {
		return cfbridge.ChunkResponse{Err: fmt.Errorf("open %s: %w", req.Path, err)}
	}
	defer f.Close()

	buf := make([]byte, req.MaxLength)
	n, err := f.ReadAt(buf, req.Offset)
	switch {
	case errors.Is(err, io.EOF):
		return cfbridge.ChunkResponse{Data: buf[:n], EOF: true}
	case err != nil:
		return cfbridge.ChunkResponse{Err: fmt.Errorf("read %s at %d: %w", req.Path, req.Offset, err)}
	}
	return cfbridge.ChunkResponse{Data: buf[:n]}
}

func (s *LocalSource) resolve(rel string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(rel, `\`, "/"))
	if clean == "/" {
		return "", fmt.Errorf("%q: %w", rel, ErrInvalidPath)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}
