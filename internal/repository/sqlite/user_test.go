package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/macleann/fountainheadapi/internal/apperror"
	"github.com/macleann/fountainheadapi/internal/model"
)

// newTestDB returns a fresh in-memory database, closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newFileTestDB returns a database backed by a file in t.TempDir(). Tests
// that exercise concurrency need it: only a file database is shared across
// several pooled connections.
func newFileTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create file test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser registers a user with the default initial state.
func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: "$2a$04$notarealhash",
	}
	if _, err := db.CreateWithState(context.Background(), user, model.InitialState); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

// =========================================================================
// CreateWithState TESTS
// =========================================================================

func TestCreateWithState(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Username:     "ann",
		Email:        "a@x.com",
		FirstName:    "A",
		LastName:     "N",
		PasswordHash: "$2a$04$hash",
	}

	doc, err := db.CreateWithState(context.Background(), user, json.RawMessage(`{"locations":["start"]}`))
	if err != nil {
		t.Fatalf("CreateWithState() error = %v", err)
	}

	if user.ID == "" {
		t.Error("CreateWithState() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreateWithState() did not set user.CreatedAt")
	}
	if doc.UserID != user.ID {
		t.Errorf("doc.UserID = %q, want %q", doc.UserID, user.ID)
	}
	if string(doc.State) != `{"locations":["start"]}` {
		t.Errorf("doc.State = %s", doc.State)
	}

	stored, err := db.GetOrCreate(context.Background(), user.ID, model.EmptyState)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if string(stored.State) != `{"locations":["start"]}` {
		t.Errorf("stored state = %s, want the registration state", stored.State)
	}
}

func TestCreateWithState_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "first")

	dup := &model.User{Username: "second", Email: "first@example.com"}
	_, err := db.CreateWithState(context.Background(), dup, model.InitialState)

	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateWithState() error = %v, want ErrConflict", err)
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Field != "email" {
		t.Errorf("conflict field = %q, want email", appErr.Field)
	}
	if got := countRows(t, db, "users"); got != 1 {
		t.Errorf("users rows = %d, want 1", got)
	}
	if got := countRows(t, db, "game_states"); got != 1 {
		t.Errorf("game_states rows = %d, want 1", got)
	}
}

func TestCreateWithState_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "taken")

	dup := &model.User{Username: "taken", Email: "other@example.com"}
	_, err := db.CreateWithState(context.Background(), dup, model.InitialState)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateWithState() error = %v, want username conflict", err)
	}
	if appErr.Field != "username" {
		t.Errorf("conflict field = %q, want username", appErr.Field)
	}
	if got := countRows(t, db, "game_states"); got != 1 {
		t.Errorf("game_states rows = %d, want 1 (no orphan document)", got)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "getbyid")

	found, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.Username != "getbyid" {
		t.Errorf("Username = %q, want %q", found.Username, "getbyid")
	}
	if found.PasswordHash != "$2a$04$notarealhash" {
		t.Errorf("PasswordHash = %q, not round-tripped", found.PasswordHash)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetByUsernameAndEmail(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "lookup")

	byName, err := db.GetByUsername(context.Background(), "lookup")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	byEmail, err := db.GetByEmail(context.Background(), "lookup@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byName.ID != created.ID || byEmail.ID != created.ID {
		t.Errorf("lookups returned %q and %q, want %q", byName.ID, byEmail.ID, created.ID)
	}

	if _, err := db.GetByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByEmail() unknown error = %v, want ErrNotFound", err)
	}
}

func TestThirdPartyUserHasNullPassword(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Username: "g@example.com", Email: "g@example.com"}
	if _, err := db.CreateWithState(context.Background(), user, model.EmptyState); err != nil {
		t.Fatalf("CreateWithState() error = %v", err)
	}

	var isNull bool
	err := db.conn.QueryRow(`SELECT password_hash IS NULL FROM users WHERE id = ?`, user.ID).Scan(&isNull)
	if err != nil {
		t.Fatalf("reading password_hash: %v", err)
	}
	if !isNull {
		t.Error("password_hash should be NULL for a third-party account")
	}

	found, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.HasUsablePassword() {
		t.Error("third-party account should not have a usable password")
	}
}
