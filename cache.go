package main

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// CacheKey identifies a cached pull request metadata entry.
type CacheKey struct {
	Owner  string
	Repo   string
	Number int
}

// CacheEntry is one row of the metadata cache. At most one entry exists per
// key; updates replace the row atomically.
type CacheEntry struct {
	Key          CacheKey
	Body         []byte
	ETag         string
	LastModified string
	FetchedAt    time.Time
}

// MetadataCache is a conditional-revalidation store for pull request
// metadata, backed by a local SQLite database. One connection is opened per
// operation; foreign keys are enabled on every open.
type MetadataCache struct {
	databasePath string
}

// OpenMetadataCache validates the database path and checks that migrations
// have been applied. Reads and writes against an unmigrated store fail with
// an error directing the user to the migrate-db command.
func OpenMetadataCache(databasePath string) (*MetadataCache, error) {
	if strings.TrimSpace(databasePath) == "" {
		return nil, &PersistenceError{Kind: PersistenceBlankDatabaseURL}
	}

	cache := &MetadataCache{databasePath: strings.TrimSpace(databasePath)}

	db, err := cache.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	if _, err := readSchemaVersion(db); err != nil {
		return nil, err
	}
	return cache, nil
}

// open opens a fresh connection with foreign-key enforcement enabled.
func (c *MetadataCache) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", c.databasePath)
	if err != nil {
		return nil, &PersistenceError{Kind: PersistenceConnectionFailed, Message: err.Error()}
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, &PersistenceError{Kind: PersistenceForeignKeysEnableFailed, Message: err.Error()}
	}
	return db, nil
}

// Get returns the cached entry for key, reporting whether one exists.
func (c *MetadataCache) Get(key CacheKey) (CacheEntry, bool, error) {
	db, err := c.open()
	if err != nil {
		return CacheEntry{}, false, err
	}
	defer func() { _ = db.Close() }()

	row := db.QueryRow(
		`SELECT body, etag, last_modified, fetched_at
		   FROM pr_metadata_cache
		  WHERE owner = ? AND repo = ? AND number = ?`,
		key.Owner, key.Repo, key.Number,
	)

	var entry CacheEntry
	var fetchedAt int64
	err = row.Scan(&entry.Body, &entry.ETag, &entry.LastModified, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, &PersistenceError{Kind: PersistenceQueryFailed, Message: err.Error()}
	}
	entry.Key = key
	entry.FetchedAt = time.Unix(fetchedAt, 0).UTC()
	return entry, true, nil
}

// Put inserts or replaces the entry for key.
func (c *MetadataCache) Put(key CacheKey, body []byte, etag, lastModified string, now time.Time) error {
	db, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(
		`INSERT INTO pr_metadata_cache (owner, repo, number, body, etag, last_modified, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner, repo, number) DO UPDATE SET
		   body = excluded.body,
		   etag = excluded.etag,
		   last_modified = excluded.last_modified,
		   fetched_at = excluded.fetched_at`,
		key.Owner, key.Repo, key.Number, body, etag, lastModified, now.Unix(),
	)
	if err != nil {
		return &PersistenceError{Kind: PersistenceQueryFailed, Message: err.Error()}
	}
	return nil
}

// Touch refreshes the fetched_at timestamp of an existing entry, used after
// a 304 response confirms the cached body is still current.
func (c *MetadataCache) Touch(key CacheKey, now time.Time) error {
	db, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(
		`UPDATE pr_metadata_cache SET fetched_at = ? WHERE owner = ? AND repo = ? AND number = ?`,
		now.Unix(), key.Owner, key.Repo, key.Number,
	)
	if err != nil {
		return &PersistenceError{Kind: PersistenceQueryFailed, Message: err.Error()}
	}
	return nil
}

// IsFresh reports whether entry is still within its freshness window.
func IsFresh(entry CacheEntry, now time.Time, ttl time.Duration) bool {
	return entry.FetchedAt.Add(ttl).After(now)
}

// readSchemaVersion returns the latest applied migration version, or a
// MissingSchemaVersion error when the store is unmigrated.
func readSchemaVersion(db *sql.DB) (string, error) {
	var exists int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'goose_db_version'`,
	).Scan(&exists)
	if err != nil {
		return "", &PersistenceError{Kind: PersistenceSchemaVersionQueryFailed, Message: err.Error()}
	}
	if exists == 0 {
		return "", &PersistenceError{Kind: PersistenceMissingSchemaVersion}
	}

	var version sql.NullInt64
	err = db.QueryRow(
		`SELECT MAX(version_id) FROM goose_db_version WHERE is_applied = 1`,
	).Scan(&version)
	if err != nil {
		return "", &PersistenceError{Kind: PersistenceSchemaVersionQueryFailed, Message: err.Error()}
	}
	if !version.Valid || version.Int64 == 0 {
		return "", &PersistenceError{Kind: PersistenceMissingSchemaVersion}
	}
	return strconv.FormatInt(version.Int64, 10), nil
}
