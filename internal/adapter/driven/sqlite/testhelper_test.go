package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"
)

// testNow is the fixed clock used by repos under test.
var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

// openTestDB opens a named shared in-memory SQLite database without running
// migrations. The name is derived from t.Name() so parallel tests stay isolated.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it cannot be read as DSN query parameters.
	safeName := url.PathEscape(t.Name())
	// WAL mode does not apply to in-memory databases.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		safeName,
	)

	db, err := openDB(context.Background(), dsn, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// setupTestDB returns a migrated in-memory database.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db := openTestDB(t)
	if err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}

func newTestUserRepo(db *DB) *UserRepo {
	repo := NewUserRepo(db)
	repo.now = func() time.Time { return testNow }
	return repo
}

func newTestKeyRepo(db *DB) *KeyRepo {
	repo := NewKeyRepo(db)
	repo.now = func() time.Time { return testNow }
	return repo
}

func ptr[T any](v T) *T {
	return &v
}
