// Package store provides the SQLite-backed local storage for news-cli: the
// persisted session credential and a cache of the category and source
// catalogs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// credentialKey is the single key holding the bearer token.
const credentialKey = "credential"

var (
	// ErrNotFound is returned when a catalog lookup has no match.
	ErrNotFound = errors.New("not found")
	// ErrCatalogStale is returned when a cached catalog is missing or too old.
	ErrCatalogStale = errors.New("catalog cache is empty or stale")
)

// CatalogKind names a cached catalog.
type CatalogKind string

const (
	CatalogCategories CatalogKind = "category"
	CatalogSources    CatalogKind = "source"
)

// CatalogEntry is one cached category or source.
type CatalogEntry struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"baseUrl,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Store manages the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}

	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and indexes.
func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS catalog (
		kind TEXT NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		base_url TEXT,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_catalog_name ON catalog(kind, name COLLATE NOCASE);
	`

	_, err := s.db.Exec(schema)
	return err
}

// LoadToken returns the persisted credential, or "" when none is stored.
func (s *Store) LoadToken(ctx context.Context) (string, error) {
	value, err := s.get(ctx, credentialKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}

// SaveToken persists the credential, replacing any previous one.
func (s *Store) SaveToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("refusing to persist an empty credential")
	}
	return s.set(ctx, credentialKey, token)
}

// DeleteToken removes the persisted credential. Deleting a missing key is
// not an error.
func (s *Store) DeleteToken(ctx context.Context) error {
	query, args, err := sq.Delete("kv").Where(sq.Eq{"key": credentialKey}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	query, args, err := sq.Select("value").From("kv").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build select: %w", err)
	}

	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	query, args, err := sq.Insert("kv").
		Columns("key", "value", "updated_at").
		Values(key, value, s.now().Unix()).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// SaveCatalog replaces every cached entry of kind with entries.
func (s *Store) SaveCatalog(ctx context.Context, kind CatalogKind, entries []CatalogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Delete("catalog").Where(sq.Eq{"kind": string(kind)}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear %s catalog: %w", kind, err)
	}

	if len(entries) > 0 {
		fetchedAt := s.now().Unix()
		insert := sq.Insert("catalog").Columns("kind", "id", "name", "base_url", "fetched_at")
		for _, e := range entries {
			insert = insert.Values(string(kind), e.ID, e.Name, e.BaseURL, fetchedAt)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert %s catalog: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s catalog: %w", kind, err)
	}
	return nil
}

// Catalog returns the cached entries of kind ordered by name. It returns
// ErrCatalogStale when nothing is cached or the cache is older than maxAge.
// A maxAge of zero accepts any age.
func (s *Store) Catalog(ctx context.Context, kind CatalogKind, maxAge time.Duration) ([]CatalogEntry, error) {
	entries, err := s.queryCatalog(ctx, catalogSelect().
		Where(sq.Eq{"kind": string(kind)}).
		OrderBy("name COLLATE NOCASE", "id"))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrCatalogStale
	}

	if maxAge > 0 {
		cutoff := s.now().Add(-maxAge)
		for _, e := range entries {
			if e.FetchedAt.Before(cutoff) {
				return nil, ErrCatalogStale
			}
		}
	}
	return entries, nil
}

// LookupCatalog resolves ref, either a numeric ID or a case-insensitive
// name, against the cached entries of kind.
func (s *Store) LookupCatalog(ctx context.Context, kind CatalogKind, ref string) (CatalogEntry, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return CatalogEntry{}, ErrNotFound
	}

	cond := sq.Or{sq.Expr("name = ? COLLATE NOCASE", ref)}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		cond = append(cond, sq.Eq{"id": id})
	}

	entries, err := s.queryCatalog(ctx, catalogSelect().
		Where(sq.Eq{"kind": string(kind)}).
		Where(cond).
		OrderBy("id").
		Limit(1))
	if err != nil {
		return CatalogEntry{}, err
	}
	if len(entries) == 0 {
		return CatalogEntry{}, fmt.Errorf("%s %q: %w", kind, ref, ErrNotFound)
	}
	return entries[0], nil
}

func catalogSelect() sq.SelectBuilder {
	return sq.Select("id", "name", "base_url", "fetched_at").From("catalog")
}

func (s *Store) queryCatalog(ctx context.Context, b sq.SelectBuilder) ([]CatalogEntry, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		var baseURL sql.NullString
		var fetchedAt int64
		if err := rows.Scan(&e.ID, &e.Name, &baseURL, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		e.BaseURL = baseURL.String
		e.FetchedAt = time.Unix(fetchedAt, 0)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
