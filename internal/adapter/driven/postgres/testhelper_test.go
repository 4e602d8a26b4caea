package postgres

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

var userColumns = []string{
	"id", "credits", "plan", "status", "plan_expiry", "keys_redeemed", "registered_at", "custom_urls", "serp_key",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	})
	return db, mock
}

func newTestUserRepo(db *sql.DB) *UserRepo {
	repo := NewUserRepo(db)
	repo.now = func() time.Time { return testNow }
	return repo
}

func newTestKeyRepo(db *sql.DB) *KeyRepo {
	repo := NewKeyRepo(db)
	repo.now = func() time.Time { return testNow }
	return repo
}

func ptr[T any](v T) *T {
	return &v
}
