package db

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func mapFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestLoadMigrations(t *testing.T) {
	fsys := mapFS(map[string]string{
		"001_ruleset.sql":  "CREATE TABLE comorbidity_ruleset (id UUID PRIMARY KEY);",
		"002_category.sql": "CREATE TABLE comorbidity_category (name TEXT);",
		"003_index.sql":    "CREATE INDEX idx ON comorbidity_ruleset (id);",
	})

	migrator, err := NewMigratorFS(nil, fsys, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 {
		t.Errorf("expected version 1, got %d", migrations[0].Version)
	}
	if migrations[0].Name != "001_ruleset.sql" {
		t.Errorf("expected name 001_ruleset.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE comorbidity_ruleset (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	fsys := mapFS(map[string]string{
		"010_tables.sql": "SELECT 10;",
		"002_second.sql": "SELECT 2;",
		"001_first.sql":  "SELECT 1;",
		"005_middle.sql": "SELECT 5;",
	})

	migrator, _ := NewMigratorFS(nil, fsys, "")
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	expectedVersions := []int{1, 2, 5, 10}
	if len(migrations) != len(expectedVersions) {
		t.Fatalf("expected %d migrations, got %d", len(expectedVersions), len(migrations))
	}
	for i, expected := range expectedVersions {
		if migrations[i].Version != expected {
			t.Errorf("migration[%d]: expected version %d, got %d", i, expected, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_InvalidFilename(t *testing.T) {
	fsys := mapFS(map[string]string{
		"001_valid.sql":      "SELECT 1;",
		"readme.sql":         "-- no version prefix",
		"notes.txt":          "not a sql file",
		"abc_invalid.sql":    "-- non-numeric prefix",
		"002_also_valid.sql": "SELECT 2;",
	})

	migrator, _ := NewMigratorFS(nil, fsys, "")
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := mapFS(map[string]string{
		"001_a.sql": "SELECT 1;",
		"1_b.sql":   "SELECT 1;",
	})

	migrator, _ := NewMigratorFS(nil, fsys, "")
	_, err := migrator.LoadMigrations()
	if err == nil {
		t.Fatal("expected error for duplicate version")
	}
	if !strings.Contains(err.Error(), "duplicate migration version 1") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrator, err := NewMigrator(nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) < 1 {
		t.Fatal("expected embedded migrations")
	}
	if !strings.Contains(migrations[0].SQL, "comorbidity_ruleset") {
		t.Errorf("expected first migration to create comorbidity_ruleset")
	}
	for i, mig := range migrations {
		if mig.Version != i+1 {
			t.Errorf("expected contiguous versions, got %d at position %d", mig.Version, i)
		}
	}
}

func TestNewMigrator_Schema(t *testing.T) {
	m, err := NewMigratorFS(nil, mapFS(nil), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.schema != DefaultSchema {
		t.Errorf("expected schema %s, got %s", DefaultSchema, m.schema)
	}

	if _, err := NewMigratorFS(nil, mapFS(nil), "rules; DROP TABLE x"); err == nil {
		t.Error("expected error for invalid schema name")
	}
}

func TestPendingAndStatuses(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_ruleset.sql"},
		{Version: 2, Name: "002_lookup.sql"},
		{Version: 3, Name: "003_extra.sql"},
	}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	applied := map[int]time.Time{1: at}

	p := pending(migrations, applied, 0)
	if len(p) != 2 || p[0].Version != 2 || p[1].Version != 3 {
		t.Errorf("expected pending [2 3], got %v", p)
	}

	p = pending(migrations, applied, 2)
	if len(p) != 1 || p[0].Version != 2 {
		t.Errorf("expected pending [2] up to version 2, got %v", p)
	}

	st := statuses(migrations, applied)
	if len(st) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(st))
	}
	if !st[0].Applied || st[0].AppliedAt == nil || !st[0].AppliedAt.Equal(at) {
		t.Errorf("expected migration 1 applied at %v, got %+v", at, st[0])
	}
	if st[1].Applied || st[1].AppliedAt != nil {
		t.Error("expected migration 2 to be pending")
	}
}
