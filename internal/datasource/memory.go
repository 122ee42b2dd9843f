package datasource

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/fruitsalade/cloudbridge/internal/cfbridge"
)

// MemorySource serves file contents held in memory.
type MemorySource struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{files: make(map[string][]byte)}
}

func memKey(p string) string {
	return strings.TrimLeft(strings.ReplaceAll(p, `\`, "/"), "/")
}

// Put stores a copy of data under p.
func (m *MemorySource) Put(p string, data []byte) {
	m.mu.Lock()
	m.files[memKey(p)] = append([]byte(nil), data...)
	m.mu.Unlock()
}

// Delete removes p.
func (m *MemorySource) Delete(p string) {
	m.mu.Lock()
	delete(m.files, memKey(p))
	m.mu.Unlock()
}

// Rename moves p to target.
func (m *MemorySource) Rename(p, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.files[memKey(p)]; ok {
		delete(m.files, memKey(p))
		m.files[memKey(target)] = data
	}
}

// Len returns the number of stored files.
func (m *MemorySource) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Pull implements cfbridge.DataSource.
func (m *MemorySource) Pull(ctx context.Context, req cfbridge.ChunkRequest) cfbridge.ChunkResponse {
	if req.Offset < 0 || req.MaxLength <= 0 {
		return cfbridge.ChunkResponse{Err: fmt.Errorf("pull %s [%d,+%d): %w", req.Path, req.Offset, req.MaxLength, cfbridge.ErrInvalidParam)}
	}
	m.mu.RLock()
	data, ok := m.files[memKey(req.Path)]
	m.mu.RUnlock()
	if !ok {
		return cfbridge.ChunkResponse{Err: fmt.Errorf("pull %s: %w", req.Path, fs.ErrNotExist)}
	}

	size := int64(len(data))
	if req.Offset >= size {
		return cfbridge.ChunkResponse{EOF: true}
	}
	end := min(size, req.Offset+req.MaxLength)
	out := append([]byte(nil), data[req.Offset:end]...)
	return cfbridge.ChunkResponse{Data: out, EOF: end == size}
}
