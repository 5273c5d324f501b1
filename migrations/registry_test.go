package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	activation "github.com/goliatone/go-checkout-activation"
	_ "github.com/mattn/go-sqlite3"
)

func TestSources_ReturnsPostgresAndSQLite(t *testing.T) {
	sources, err := Sources()
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	dialects := map[string]string{}
	for _, source := range sources {
		dialects[source.Dialect] = source.Path
	}
	if dialects[DialectPostgres] != "data/sql/migrations" {
		t.Fatalf("expected postgres tree at the root, got %#v", dialects)
	}
	if dialects[DialectSQLite] != "data/sql/migrations/sqlite" {
		t.Fatalf("expected sqlite tree below the root, got %#v", dialects)
	}
}

func TestSources_RejectsTreeWithoutMigrations(t *testing.T) {
	_, err := Sources(fstest.MapFS{
		"README.md": &fstest.MapFile{Data: []byte("nothing here")},
	})
	if err == nil {
		t.Fatalf("expected error for tree without migrations")
	}
}

func TestSources_RejectsMissingDownMigration(t *testing.T) {
	schema := []byte("CREATE TABLE activation_event_claims (id TEXT);\nCREATE TABLE activation_codes (id TEXT);")
	_, err := Sources(fstest.MapFS{
		"0001_schema.up.sql":        &fstest.MapFile{Data: schema},
		"sqlite/0001_schema.up.sql": &fstest.MapFile{Data: schema},
	})
	if err == nil || !strings.Contains(err.Error(), "0001_schema.down.sql") {
		t.Fatalf("expected missing down migration error, got %v", err)
	}
}

func TestSources_RejectsIncompleteSchema(t *testing.T) {
	claimsOnly := []byte("CREATE TABLE IF NOT EXISTS activation_event_claims (id TEXT);")
	drop := []byte("DROP TABLE activation_event_claims;")
	_, err := Sources(fstest.MapFS{
		"0001_schema.up.sql":          &fstest.MapFile{Data: claimsOnly},
		"0001_schema.down.sql":        &fstest.MapFile{Data: drop},
		"sqlite/0001_schema.up.sql":   &fstest.MapFile{Data: claimsOnly},
		"sqlite/0001_schema.down.sql": &fstest.MapFile{Data: drop},
	})
	if err == nil || !strings.Contains(err.Error(), "activation_codes") {
		t.Fatalf("expected missing activation_codes table error, got %v", err)
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite":   DialectSQLite,
		"sqlite3":  DialectSQLite,
		"postgres": DialectPostgres,
		" PGX ":    DialectPostgres,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("%q: expected %q, got %q err=%v", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("memory"); err == nil {
		t.Fatalf("expected error for memory driver")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	var labels []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect)
		labels = append(labels, label)
		return nil
	}, WithValidationTargets(" SQLite "))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected one sqlite registration, got %v", calls)
	}
	if labels[0] != SourceLabel {
		t.Fatalf("expected default source label %q, got %q", SourceLabel, labels[0])
	}
}

func TestRegister_RejectsUnknownTarget(t *testing.T) {
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		t.Fatalf("nothing should be registered")
		return nil
	}, WithValidationTargets("mysql"))
	if err == nil {
		t.Fatalf("expected error when no source matches")
	}
}

func TestRegister_PropagatesRegisterError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return boom
	}, WithDialectSourceLabel("checkout"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped register error, got %v", err)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error without register function")
	}
}

func TestActivationSchemaMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := activation.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_activation_core_schema.up.sql",
		"data/sql/migrations/00001_activation_core_schema.down.sql",
		"data/sql/migrations/sqlite/00001_activation_core_schema.up.sql",
		"data/sql/migrations/sqlite/00001_activation_core_schema.down.sql",
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

func TestSQLiteActivationSchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-activation-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := activation.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_activation_core_schema.up.sql"); err != nil {
		t.Fatalf("apply schema up: %v", err)
	}

	for _, tableName := range []string{"activation_event_claims", "activation_codes"} {
		if count := countSQLiteObjects(t, db, "table", tableName); count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	insertStatement := `
		INSERT INTO activation_codes (
			id,
			session_id,
			customer_email,
			tier,
			code,
			amount,
			currency
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(context.Background(), insertStatement,
		"act_1", "cs_test_1", "marie@example.fr", "premium", "PREMIUM-ABCDEFGH", 4900, "eur",
	); err != nil {
		t.Fatalf("insert activation: %v", err)
	}
	if _, err := db.ExecContext(context.Background(), insertStatement,
		"act_2", "cs_test_1", "marie@example.fr", "premium", "PREMIUM-STUVWXYZ", 4900, "eur",
	); err == nil {
		t.Fatalf("expected unique session violation")
	}
	if _, err := db.ExecContext(context.Background(), insertStatement,
		"act_3", "cs_test_2", "paul@example.fr", "pro", "PREMIUM-ABCDEFGH", 9900, "eur",
	); err == nil {
		t.Fatalf("expected unique code violation")
	}

	var status string
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT notification_status FROM activation_codes WHERE session_id=?`,
		"cs_test_1",
	).Scan(&status); err != nil {
		t.Fatalf("select notification status: %v", err)
	}
	if status != "pending" {
		t.Fatalf("expected default notification status pending, got %q", status)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_activation_core_schema.down.sql"); err != nil {
		t.Fatalf("apply schema down: %v", err)
	}
	for _, tableName := range []string{"activation_event_claims", "activation_codes"} {
		if count := countSQLiteObjects(t, db, "table", tableName); count != 0 {
			t.Fatalf("expected table %s to be dropped after down migration", tableName)
		}
	}
}

func countSQLiteObjects(t *testing.T, db *sql.DB, kind string, name string) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?`,
		kind,
		name,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master for %s: %v", name, err)
	}
	return count
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
