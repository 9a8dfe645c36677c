package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func migratedCache(t *testing.T) *MetadataCache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	if _, err := MigrateDatabase(dbPath, NoopTelemetrySink{}); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	cache, err := OpenMetadataCache(dbPath)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return cache
}

func TestMigrateDatabase_RecordsSchemaVersionTelemetry(t *testing.T) {
	sink := &recordingTelemetrySink{}
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	version, err := MigrateDatabase(dbPath, sink)
	if err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	if version == "" {
		t.Fatal("migration should report a schema version")
	}

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected one telemetry event, got %d", len(events))
	}
	if events[0].Type != "schema_version_recorded" || events[0].SchemaVersion != version {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestMigrateDatabase_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	first, err := MigrateDatabase(dbPath, NoopTelemetrySink{})
	if err != nil {
		t.Fatalf("first migration failed: %v", err)
	}
	second, err := MigrateDatabase(dbPath, NoopTelemetrySink{})
	if err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
	if first != second {
		t.Errorf("repeated migration changed the schema version: %s vs %s", first, second)
	}
}

func TestMigrateDatabase_BlankPath(t *testing.T) {
	_, err := MigrateDatabase("   ", NoopTelemetrySink{})
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Kind != PersistenceBlankDatabaseURL {
		t.Fatalf("expected BlankDatabaseURL error, got %v", err)
	}
}

func TestOpenMetadataCache_BlankPath(t *testing.T) {
	_, err := OpenMetadataCache("")
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Kind != PersistenceBlankDatabaseURL {
		t.Fatalf("expected BlankDatabaseURL error, got %v", err)
	}
}

func TestOpenMetadataCache_UnmigratedStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")
	_, err := OpenMetadataCache(dbPath)
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Kind != PersistenceMissingSchemaVersion {
		t.Fatalf("expected MissingSchemaVersion error, got %v", err)
	}
	if !strings.Contains(err.Error(), "migrate-db") {
		t.Errorf("error should direct the user to migrate-db, got %q", err.Error())
	}
}

func TestCachePutGetRoundTrip(t *testing.T) {
	cache := migratedCache(t)
	key := CacheKey{Owner: "octo", Repo: "repo", Number: 42}
	now := time.Unix(1_700_000_000, 0).UTC()

	if err := cache.Put(key, []byte(`{"title":"old"}`), `"etag1"`, "Mon, 01 Jan 2024 00:00:00 GMT", now); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	entry, ok, err := cache.Get(key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if string(entry.Body) != `{"title":"old"}` || entry.ETag != `"etag1"` {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if !entry.FetchedAt.Equal(now) {
		t.Errorf("fetched_at mismatch: %v vs %v", entry.FetchedAt, now)
	}
}

func TestCachePut_ReplacesExistingEntry(t *testing.T) {
	cache := migratedCache(t)
	key := CacheKey{Owner: "octo", Repo: "repo", Number: 1}
	now := time.Unix(1_700_000_000, 0).UTC()

	if err := cache.Put(key, []byte("one"), `"a"`, "", now); err != nil {
		t.Fatalf("first put failed: %v", err)
	}
	if err := cache.Put(key, []byte("two"), `"b"`, "", now.Add(time.Minute)); err != nil {
		t.Fatalf("second put failed: %v", err)
	}

	entry, ok, err := cache.Get(key)
	if err != nil || !ok {
		t.Fatalf("get failed: %v ok=%v", err, ok)
	}
	if string(entry.Body) != "two" || entry.ETag != `"b"` {
		t.Errorf("entry was not replaced: %+v", entry)
	}
}

func TestCacheGet_Miss(t *testing.T) {
	cache := migratedCache(t)
	_, ok, err := cache.Get(CacheKey{Owner: "none", Repo: "none", Number: 9})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Error("expected a miss")
	}
}

func TestCacheTouchRefreshesFreshness(t *testing.T) {
	cache := migratedCache(t)
	key := CacheKey{Owner: "octo", Repo: "repo", Number: 5}
	start := time.Unix(1_700_000_000, 0).UTC()

	if err := cache.Put(key, []byte("body"), "", "", start); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := cache.Touch(key, start.Add(10*time.Minute)); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	entry, _, err := cache.Get(key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !IsFresh(entry, start.Add(12*time.Minute), 5*time.Minute) {
		t.Error("touched entry should be fresh again")
	}
}

func TestIsFresh(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	entry := CacheEntry{FetchedAt: now}
	if !IsFresh(entry, now.Add(4*time.Minute), 5*time.Minute) {
		t.Error("entry inside the window should be fresh")
	}
	if IsFresh(entry, now.Add(6*time.Minute), 5*time.Minute) {
		t.Error("entry outside the window should be stale")
	}
}
