// Package regions serves the County -> SubCounty -> Ward reference data.
package regions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kenvote/registry/internal/domain"
)

// Regions maps county to sub-county to wards.
type Regions map[string]map[string][]string

// Loader reads the regions file and caches it until the file changes.
type Loader struct {
	path string

	mu      sync.RWMutex
	cached  Regions
	modTime time.Time
	size    int64
}

// NewLoader creates a loader for path. Nothing is read until Load.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load returns the region tree.
func (l *Loader) Load(_ context.Context) (Regions, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, domain.ErrInternal("cannot load regions", err)
	}

	l.mu.RLock()
	if l.cached != nil && info.ModTime().Equal(l.modTime) && info.Size() == l.size {
		r := l.cached
		l.mu.RUnlock()
		return r, nil
	}
	l.mu.RUnlock()

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, domain.ErrInternal("cannot load regions", err)
	}
	r, err := Decode(raw)
	if err != nil {
		return nil, domain.ErrInternal("cannot load regions", err)
	}

	l.mu.Lock()
	l.cached, l.modTime, l.size = r, info.ModTime(), info.Size()
	l.mu.Unlock()
	return r, nil
}

// Decode parses region JSON. An empty object is rejected.
func Decode(raw []byte) (Regions, error) {
	var r Regions
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}
	if len(r) == 0 {
		return nil, errors.New("decode regions: no counties")
	}
	return r, nil
}

// Counts returns the number of counties, sub-counties and wards.
func (r Regions) Counts() (counties, subCounties, wards int) {
	for _, subs := range r {
		counties++
		for _, ws := range subs {
			subCounties++
			wards += len(ws)
		}
	}
	return
}

// Fetch downloads region data from url, retrying transient failures.
func Fetch(ctx context.Context, client *http.Client, url string, retries uint64) (Regions, error) {
	var out Regions
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("regions source returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("regions source returned %d", resp.StatusCode))
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return err
		}
		r, err := Decode(raw)
		if err != nil {
			return backoff.Permanent(err)
		}
		out = r
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return out, nil
}

// Save writes r to path atomically.
func Save(path string, r Regions) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".regions-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
