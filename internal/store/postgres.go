package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kenvote/registry/internal/domain"
)

// PostgresStore keeps the document in a single JSONB row. Update holds a row
// lock (SELECT ... FOR UPDATE) for the whole read-modify-write, which
// serializes writers across every process sharing the database.
type PostgresStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	retry       RetryPolicy
}

// NewPostgresStore wraps a pool. The voter_documents table must exist (see
// infra.RunMigrations).
func NewPostgresStore(pool *pgxpool.Pool, lockTimeout time.Duration, retry RetryPolicy) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &PostgresStore{pool: pool, lockTimeout: lockTimeout, retry: retry}
}

func (s *PostgresStore) View(ctx context.Context, fn func(doc *Document) error) error {
	var doc *Document
	err := s.retry.transact(ctx, "postgres read", func() error {
		var body []byte
		err := s.pool.QueryRow(ctx, `SELECT body FROM voter_documents WHERE id = 1`).Scan(&body)
		if errors.Is(err, pgx.ErrNoRows) {
			doc = NewDocument()
			return nil
		}
		if err != nil {
			return fmt.Errorf("select document: %w", err)
		}
		d, err := decodeDocument(body)
		if err != nil {
			return reject(domain.ErrStore("document is corrupt", err))
		}
		doc = d
		return nil
	})
	if err != nil {
		return err
	}
	return fn(doc)
}

func (s *PostgresStore) Update(ctx context.Context, fn func(doc *Document) error) error {
	return s.retry.transact(ctx, "postgres update", func() error {
		return s.updateOnce(ctx, fn)
	})
}

func (s *PostgresStore) updateOnce(ctx context.Context, fn func(doc *Document) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Bound the wait for the row lock held by a concurrent writer.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO voter_documents (id, body)
		VALUES (1, '{"users": [], "voters": [], "settings": {"registration_open": true}}'::jsonb)
		ON CONFLICT (id) DO NOTHING`); err != nil {
		return fmt.Errorf("ensure document row: %w", err)
	}

	var body []byte
	if err := tx.QueryRow(ctx, `SELECT body FROM voter_documents WHERE id = 1 FOR UPDATE`).Scan(&body); err != nil {
		return fmt.Errorf("lock document: %w", err)
	}

	doc, err := decodeDocument(body)
	if err != nil {
		return reject(domain.ErrStore("document is corrupt", err))
	}
	if err := fn(doc); err != nil {
		return reject(err)
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return reject(domain.ErrInternal("encode document", err))
	}
	if _, err := tx.Exec(ctx,
		`UPDATE voter_documents SET body = $1, updated_at = now() WHERE id = 1`, data); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
