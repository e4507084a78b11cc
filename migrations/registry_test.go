package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	connectors "github.com/goliatone/go-connectors"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestRuntimeMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := connectors.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/20260301000001_connector_installations.up.sql",
		"data/sql/migrations/20260301000001_connector_installations.down.sql",
		"data/sql/migrations/20260301000002_connector_deliveries.up.sql",
		"data/sql/migrations/20260301000002_connector_deliveries.down.sql",
		"data/sql/migrations/sqlite/20260301000001_connector_installations.up.sql",
		"data/sql/migrations/sqlite/20260301000001_connector_installations.down.sql",
		"data/sql/migrations/sqlite/20260301000002_connector_deliveries.up.sql",
		"data/sql/migrations/sqlite/20260301000002_connector_deliveries.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteRuntimeSchema_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-runtime-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := connectors.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	ups := []string{
		"20260301000001_connector_installations.up.sql",
		"20260301000002_connector_deliveries.up.sql",
	}
	for _, migration := range ups {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	for _, tableName := range []string{"connector_installations", "connector_deliveries"} {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s after up migrations", tableName)
		}
	}

	insertDelivery := `
		INSERT INTO connector_deliveries
			(id, dedup_key, connector, channel_id, delivery_id, state, attempts, last_error, expires_at, received_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertDelivery,
		"del_1", "demo:c1:evt-42", "demo", "c1", "evt-42", "received", 1, "",
		"2026-03-01T13:00:00Z", "2026-03-01T12:00:00Z", "2026-03-01T12:00:00Z", "2026-03-01T12:00:00Z",
	); err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertDelivery,
		"del_2", "demo:c1:evt-42", "demo", "c1", "evt-42", "received", 1, "",
		"2026-03-01T13:00:00Z", "2026-03-01T12:00:00Z", "2026-03-01T12:00:00Z", "2026-03-01T12:00:00Z",
	); err == nil {
		t.Fatalf("expected dedup_key unique violation")
	}

	downs := []string{
		"20260301000002_connector_deliveries.down.sql",
		"20260301000001_connector_installations.down.sql",
	}
	for _, migration := range downs {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"connector_installations",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected connector_installations dropped after down migrations")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
