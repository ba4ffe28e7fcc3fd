package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// PostgresStore keeps every document as a JSONB row keyed by path.
// Transactions take row locks on read (SELECT ... FOR UPDATE), so two
// transactions touching the same path serialize and the second observes the
// first's committed state.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, path string, out any) error {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM documents WHERE path=$1`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return decodeInto(raw, out)
}

func (s *PostgresStore) Put(ctx context.Context, path string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, doc)
		VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE SET doc=EXCLUDED.doc, version=documents.version+1, updated_at=NOW()
	`, path, raw)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path=$1`, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) ListPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, doc FROM documents
		WHERE path LIKE $1 || '%'
		ORDER BY path
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var raw []byte
		if err := rows.Scan(&entry.Path, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", prefix, err)
		}
		entry.Doc = json.RawMessage(raw)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", prefix, err)
	}
	return entries, nil
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	wrapped := &pgTx{tx: sqlTx}
	if err := fn(wrapped); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Get(ctx context.Context, path string, out any) error {
	var raw []byte
	err := t.tx.QueryRowContext(ctx, `SELECT doc FROM documents WHERE path=$1 FOR UPDATE`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("tx get %s: %w", path, err)
	}
	return decodeInto(raw, out)
}

func (t *pgTx) Put(ctx context.Context, path string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO documents (path, doc)
		VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE SET doc=EXCLUDED.doc, version=documents.version+1, updated_at=NOW()
	`, path, raw)
	if err != nil {
		return fmt.Errorf("tx put %s: %w", path, err)
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, path string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM documents WHERE path=$1`, path); err != nil {
		return fmt.Errorf("tx delete %s: %w", path, err)
	}
	return nil
}

func (t *pgTx) ListPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT path, doc FROM documents
		WHERE path LIKE $1 || '%'
		ORDER BY path
		FOR UPDATE
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("tx list %s: %w", prefix, err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var raw []byte
		if err := rows.Scan(&entry.Path, &raw); err != nil {
			return nil, fmt.Errorf("tx scan %s: %w", prefix, err)
		}
		entry.Doc = json.RawMessage(raw)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tx iterate %s: %w", prefix, err)
	}
	return entries, nil
}
