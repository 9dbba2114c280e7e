package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kenvote/registry/internal/domain"
)

// FileStore persists the document as a JSON file. Writers in this process
// are serialized by a mutex; other processes sharing the file are excluded by
// an advisory lock on path + ".lock".
type FileStore struct {
	path        string
	mu          sync.Mutex
	lock        *flock.Flock
	lockTimeout time.Duration
	retry       RetryPolicy
	logger      *slog.Logger
}

// FileOptions configures a FileStore.
type FileOptions struct {
	LockTimeout time.Duration
	Retry       RetryPolicy
}

// NewFileStore opens (and if needed creates the directory for) a file store.
func NewFileStore(path string, opts FileOptions, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	return &FileStore{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: opts.LockTimeout,
		retry:       opts.Retry,
		logger:      logger,
	}, nil
}

// Path returns the location of the document file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) View(ctx context.Context, fn func(doc *Document) error) error {
	var doc *Document
	err := s.retry.transact(ctx, "read "+s.path, func() error {
		return s.withLock(ctx, func() error {
			d, err := s.read()
			if err != nil {
				return err
			}
			doc = d
			return nil
		})
	})
	if err != nil {
		return err
	}
	return fn(doc)
}

func (s *FileStore) Update(ctx context.Context, fn func(doc *Document) error) error {
	return s.retry.transact(ctx, "update "+s.path, func() error {
		return s.withLock(ctx, func() error {
			doc, err := s.read()
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return reject(err)
			}
			return s.write(doc)
		})
	})
}

// withLock holds both the process mutex and the file lock while fn runs.
// Acquiring the file lock gives up after lockTimeout.
func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire file lock: timed out after %s", s.lockTimeout)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Error("release file lock", "path", s.path, "error", err)
		}
	}()

	return fn()
}

func (s *FileStore) read() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		// A corrupt document is not transient; retrying cannot fix it.
		return nil, reject(domain.ErrStore("document is corrupt", err))
	}
	return doc, nil
}

// write replaces the document atomically via a temp file in the same directory.
func (s *FileStore) write(doc *Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return reject(domain.ErrInternal("encode document", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}
