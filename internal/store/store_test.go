package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenvote/registry/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "data", "db.json"), FileOptions{
		LockTimeout: time.Second,
		Retry:       RetryPolicy{Retries: 2, Interval: time.Millisecond},
	}, testLogger())
	require.NoError(t, err)
	return s
}

// stores returns every implementation that runs without external services.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   newFileStore(t),
	}
}

func TestStore_EmptyDocumentDefaults(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.View(context.Background(), func(doc *Document) error {
				assert.Empty(t, doc.Accounts)
				assert.Empty(t, doc.Voters)
				assert.True(t, doc.Settings.RegistrationOpen)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestStore_UpdatePersists(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Update(ctx, func(doc *Document) error {
				doc.Voters = append(doc.Voters, domain.VoterRecord{ID: "v1", RegistrationNumber: "KEN-20240101-AAAA"})
				doc.Settings.RegistrationOpen = false
				return nil
			})
			require.NoError(t, err)

			err = s.View(ctx, func(doc *Document) error {
				require.Len(t, doc.Voters, 1)
				assert.Equal(t, "KEN-20240101-AAAA", doc.Voters[0].RegistrationNumber)
				assert.False(t, doc.Settings.RegistrationOpen)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestStore_RejectedUpdateWritesNothing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			boom := domain.ErrValidation("nope")
			err := s.Update(ctx, func(doc *Document) error {
				doc.Voters = append(doc.Voters, domain.VoterRecord{ID: "v1"})
				return boom
			})
			assert.Same(t, boom, err)

			_ = s.View(ctx, func(doc *Document) error {
				assert.Empty(t, doc.Voters)
				return nil
			})
		})
	}
}

func TestStore_ViewDoesNotLeakMutations(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.View(ctx, func(doc *Document) error {
				doc.Settings.RegistrationOpen = false
				return nil
			})
			_ = s.View(ctx, func(doc *Document) error {
				assert.True(t, doc.Settings.RegistrationOpen)
				return nil
			})
		})
	}
}

func TestStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const n = 40

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := s.Update(ctx, func(doc *Document) error {
						doc.Voters = append(doc.Voters, domain.VoterRecord{ID: fmt.Sprintf("v%d", i)})
						return nil
					})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			_ = s.View(ctx, func(doc *Document) error {
				assert.Len(t, doc.Voters, n, "no update may be lost")
				return nil
			})
		})
	}
}

func TestMemoryStore_RetriesTransientWriteFailure(t *testing.T) {
	s := NewMemoryStore()
	s.failWrites = 2

	calls := 0
	err := s.Update(context.Background(), func(doc *Document) error {
		calls++
		doc.Settings.RegistrationOpen = false
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestMemoryStore_FailsWithStoreErrorAfterRetries(t *testing.T) {
	s := NewMemoryStore()
	s.failWrites = 10

	err := s.Update(context.Background(), func(doc *Document) error { return nil })
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeStore))
	assert.True(t, errors.Is(err, errInjected))
}

func TestFileStore_MissingFileIsEmptyDocument(t *testing.T) {
	s := newFileStore(t)
	_, err := os.Stat(s.Path())
	require.True(t, os.IsNotExist(err))

	_ = s.View(context.Background(), func(doc *Document) error {
		assert.True(t, doc.Settings.RegistrationOpen)
		return nil
	})
}

func TestFileStore_ReadsLegacyDocument(t *testing.T) {
	s := newFileStore(t)
	legacy := `{"users":[{"id":"1","username":"root","role":"superadmin"}],"voters":[],"settings":{"registration_open":false}}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0o644))

	err := s.View(context.Background(), func(doc *Document) error {
		require.Len(t, doc.Accounts, 1)
		assert.Equal(t, domain.RoleSuperadmin, doc.Accounts[0].Role)
		assert.False(t, doc.Settings.RegistrationOpen)
		return nil
	})
	require.NoError(t, err)
}

func TestFileStore_CorruptDocumentIsStoreError(t *testing.T) {
	s := newFileStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	err := s.Update(context.Background(), func(doc *Document) error { return nil })
	assert.True(t, domain.IsCode(err, domain.CodeStore))
}

func TestFileStore_LockTimeoutIsBounded(t *testing.T) {
	s := newFileStore(t)
	s.lockTimeout = 50 * time.Millisecond

	// A second handle on the lock file stands in for another process.
	other := flock.New(s.Path() + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	start := time.Now()
	err = s.Update(context.Background(), func(doc *Document) error { return nil })
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeStore))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDocument_Finders(t *testing.T) {
	doc := NewDocument()
	doc.Voters = append(doc.Voters,
		domain.VoterRecord{ID: "a", NationalID: "111", RegistrationNumber: "KEN-1"},
		domain.VoterRecord{ID: "b", NationalID: "222", RegistrationNumber: "KEN-2"},
	)
	doc.Accounts = append(doc.Accounts,
		domain.StaffAccount{ID: "u1", Username: "alice", SessionToken: "tok"},
	)

	v, i := doc.FindVoter("KEN-2")
	require.NotNil(t, v)
	assert.Equal(t, 1, i)
	assert.Equal(t, "a", doc.FindVoterByNationalID("111").ID)
	assert.True(t, doc.HasRegistrationNumber("KEN-1"))
	assert.False(t, doc.HasRegistrationNumber("KEN-3"))

	a, _ := doc.FindAccount("u1")
	require.NotNil(t, a)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, "u1", doc.FindAccountByUsername("alice").ID)
	assert.Nil(t, doc.FindAccountByUsername("bob"))
	assert.NotNil(t, doc.FindAccountByToken("tok"))
	assert.Nil(t, doc.FindAccountByToken(""))
}
