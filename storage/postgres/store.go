// Package postgres provides a PostgreSQL backed client storage, used when several
// gateway instances must share the same sessions.
package postgres

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq" // postgres driver
	"github.com/pkg/errors"

	"github.com/Movigation/moviesir-session/storage"
)

const tableName = "client_storage"

const schema = `
CREATE TABLE IF NOT EXISTS client_storage (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// Store implements storage.Storage using PostgreSQL.
type Store struct {
	db  *sql.DB
	sq  sq.StatementBuilderType
	now func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New creates a store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: time.Now,
	}
}

// Open connects with the lib/pq driver and makes sure the table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.Open] opening database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[postgres.Open] pinging database")
	}
	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the storage table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "[Store.EnsureSchema] creating schema")
	}
	return nil
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	query, args, err := s.sq.Select("value").From(tableName).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", false, errors.Wrap(err, "[Store.Get] building select")
	}

	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "[Store.Get] selecting %s", key)
	}
	return value, true, nil
}

// Set upserts a value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	query, args, err := s.sq.Insert(tableName).
		Columns("key", "value", "updated_at").
		Values(key, value, s.now().UTC()).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "[Store.Set] building upsert")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "[Store.Set] upserting %s", key)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	query, args, err := s.sq.Delete(tableName).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return errors.Wrap(err, "[Store.Delete] building delete")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "[Store.Delete] deleting %s", key)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
