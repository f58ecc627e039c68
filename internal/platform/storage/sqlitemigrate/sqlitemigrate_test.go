package sqlitemigrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

const createEvents = "-- +migrate Up\nCREATE TABLE session_events(session_id TEXT, version INTEGER, PRIMARY KEY(session_id, version));\n-- +migrate Down\nDROP TABLE session_events;"

func TestApplyMigrations(t *testing.T) {
	tests := []struct {
		name     string
		fs       fstest.MapFS
		root     string
		runs     int
		wantRows int64
		wantKey  string
		table    string
	}{
		{
			name:     "records each file once",
			fs:       fstest.MapFS{"001_events.sql": {Data: []byte(createEvents)}},
			runs:     1,
			wantRows: 1,
			wantKey:  "001_events.sql",
			table:    "session_events",
		},
		{
			name:     "second run is a no-op",
			fs:       fstest.MapFS{"001_events.sql": {Data: []byte(createEvents)}},
			runs:     2,
			wantRows: 1,
			wantKey:  "001_events.sql",
			table:    "session_events",
		},
		{
			name: "keys include the root",
			fs: fstest.MapFS{
				"events/001_events.sql": {Data: []byte(createEvents)},
				"events/002_index.sql":  {Data: []byte("-- +migrate Up\nCREATE INDEX session_events_by_id ON session_events(session_id);")},
			},
			root:     "events",
			runs:     1,
			wantRows: 2,
			wantKey:  "events/001_events.sql",
			table:    "session_events",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := openInMemoryDB(t)
			for i := 0; i < tc.runs; i++ {
				if err := ApplyMigrations(context.Background(), db, tc.fs, tc.root); err != nil {
					t.Fatalf("apply run %d: %v", i+1, err)
				}
			}
			if rows := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); rows != tc.wantRows {
				t.Fatalf("schema_migrations rows = %d, want %d", rows, tc.wantRows)
			}
			if key := queryString(t, db, "SELECT name FROM schema_migrations ORDER BY name LIMIT 1"); key != tc.wantKey {
				t.Fatalf("first key = %q, want %q", key, tc.wantKey)
			}
			if !tableExists(t, db, tc.table) {
				t.Fatalf("table %s missing", tc.table)
			}
		})
	}
}

func TestApplyMigrationsLeavesFailuresUnrecorded(t *testing.T) {
	db := openInMemoryDB(t)
	broken := fstest.MapFS{"001_events.sql": {Data: []byte("-- +migrate Up\nCREAT TABLE session_events(id INT);")}}
	if err := ApplyMigrations(context.Background(), db, broken, ""); err == nil {
		t.Fatal("expected broken migration to fail")
	}
	if rows := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); rows != 0 {
		t.Fatalf("schema_migrations rows = %d, want 0", rows)
	}

	fixed := fstest.MapFS{"001_events.sql": {Data: []byte(createEvents)}}
	if err := ApplyMigrations(context.Background(), db, fixed, ""); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if rows := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); rows != 1 {
		t.Fatalf("schema_migrations rows = %d, want 1", rows)
	}
}

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	// Each pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func queryInt64(t *testing.T, db *sql.DB, query string) int64 {
	t.Helper()
	var value int64
	row := db.QueryRow(query)
	if err := row.Scan(&value); err != nil {
		t.Fatalf("query int value: %v", err)
	}
	return value
}

func queryString(t *testing.T, db *sql.DB, query string) string {
	t.Helper()
	var value string
	row := db.QueryRow(query)
	if err := row.Scan(&value); err != nil {
		t.Fatalf("query string value: %v", err)
	}
	return value
}

func tableExists(t *testing.T, db *sql.DB, tableName string) bool {
	t.Helper()
	query := "SELECT name FROM sqlite_master WHERE type='table' AND name = ?"
	var name string
	row := db.QueryRow(query, tableName)
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false
		}
		t.Fatalf("check table exists: %v", err)
	}
	return name == tableName
}

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "no markers", content: "SELECT 1;", want: "SELECT 1;"},
		{name: "up only", content: "-- +migrate Up\nSELECT 1;", want: "\nSELECT 1;"},
		{name: "up and down", content: "-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 2;", want: "\nSELECT 1;\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractUpMigration(tc.content); got != tc.want {
				t.Fatalf("ExtractUpMigration = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLoadOrdersFiles(t *testing.T) {
	migrations := fstest.MapFS{
		"m/002_b.sql":  &fstest.MapFile{Data: []byte("-- +migrate Up\nB")},
		"m/001_a.sql":  &fstest.MapFile{Data: []byte("-- +migrate Up\nA")},
		"m/readme.txt": &fstest.MapFile{Data: []byte("ignored")},
	}
	got, err := Load(migrations, "m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("migrations = %d, want 2", len(got))
	}
	if got[0].Name != "m/001_a.sql" || got[1].Name != "m/002_b.sql" {
		t.Fatalf("names = %q, %q", got[0].Name, got[1].Name)
	}
}
