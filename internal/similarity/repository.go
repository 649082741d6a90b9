package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jonathan/tender-radar/internal/types"
)

// ExemplarRepository persists the positive exemplar corpus.
type ExemplarRepository interface {
	ListExemplars(ctx context.Context) ([]types.PositiveExemplar, error)
	AddExemplar(ctx context.Context, e types.PositiveExemplar) error
}

// FileRepository stores exemplars as a JSON array in a single file.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository returns a repository backed by path. The file is created on first write.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// ListExemplars reads the file. A missing file is an empty corpus.
func (r *FileRepository) ListExemplars(_ context.Context) ([]types.PositiveExemplar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// AddExemplar appends e and rewrites the file atomically.
func (r *FileRepository) AddExemplar(_ context.Context, e types.PositiveExemplar) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.read()
	if err != nil {
		return err
	}
	list = append(list, e)

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode exemplars: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create exemplar directory: %w", err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write exemplars: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace exemplar file: %w", err)
	}
	return nil
}

func (r *FileRepository) read() ([]types.PositiveExemplar, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read exemplars: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var list []types.PositiveExemplar
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse exemplar file %s: %w", r.path, err)
	}
	return list, nil
}
