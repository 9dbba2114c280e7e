// Package blob stores voter photos on local disk under opaque keys.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kenvote/registry/internal/domain"
)

// DefaultMaxBytes is the largest accepted photo.
const DefaultMaxBytes = 2 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// FileStore keeps one file per photo in a directory. Keys are generated here
// and never derived from client input.
type FileStore struct {
	dir      string
	maxBytes int64
}

// NewFileStore creates the upload directory if needed.
func NewFileStore(dir string, maxBytes int64) (*FileStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes is the configured size limit.
func (s *FileStore) MaxBytes() int64 { return s.maxBytes }

// Save validates and writes a JPEG or PNG photo and returns its key.
func (s *FileStore) Save(_ context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrValidation("photo is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return "", domain.ErrValidation(fmt.Sprintf("photo exceeds %d bytes", s.maxBytes))
	}
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return "", domain.ErrValidation("photo must be a JPEG or PNG image")
	}

	key := uuid.NewString() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", domain.ErrStore("save photo", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", domain.ErrStore("save photo", err)
	}
	if err := tmp.Close(); err != nil {
		return "", domain.ErrStore("save photo", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return "", domain.ErrStore("save photo", err)
	}
	return key, nil
}

// Read returns the photo bytes for key.
func (s *FileStore) Read(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound("photo", key)
	}
	if err != nil {
		return nil, domain.ErrStore("read photo", err)
	}
	return data, nil
}

// Delete removes a photo. Missing photos are not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.ErrStore("delete photo", err)
	}
	return nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key[0] == '.' {
		return "", domain.ErrNotFound("photo", key)
	}
	return filepath.Join(s.dir, key), nil
}
