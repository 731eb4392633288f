package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/macleann/fountainheadapi/internal/apperror"
	"github.com/macleann/fountainheadapi/internal/model"
	"github.com/macleann/fountainheadapi/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, first_name, last_name, password_hash, created_at, updated_at`

// CreateWithState inserts a new user and its game document in one transaction.
//
// WHY A TRANSACTION?
// A user row without a game document (or the reverse) is never visible to
// other requests: if the second INSERT fails, Rollback removes the first.
// The UNIQUE constraints on username and email are enforced by the INSERT
// itself, so two concurrent registrations for the same email cannot both
// succeed even though the service checks for the email beforehand.
func (db *DB) CreateWithState(ctx context.Context, user *model.User, state json.RawMessage) (*model.GameState, error) {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	doc := &model.GameState{
		ID:          xid.New().String(),
		UserID:      user.ID,
		State:       state,
		LastUpdated: now,
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning user transaction: %w", err)
	}
	// Rollback after Commit is a no-op, so deferring it is always safe.
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		nullString(user.PasswordHash),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if translated := translateUserInsertErr(err); translated != err {
			return nil, translated
		}
		return nil, fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO game_states (id, user_id, state, last_updated) VALUES (?, ?, ?, ?)`,
		doc.ID,
		doc.UserID,
		string(doc.State),
		doc.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting game state for user %s: %w", user.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing user %q: %w", user.Username, err)
	}

	return doc, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserWhere(ctx, "id", id)
}

// GetByUsername retrieves a user by login handle.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUserWhere(ctx, "username", username)
}

// GetByEmail retrieves a user by (already normalized) email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUserWhere(ctx, "email", email)
}

// getUserWhere runs a single-row lookup on a UNIQUE column. column is always
// a constant from this file, never user input, so building the query with
// string concatenation is safe here; the value still goes through a placeholder.
func (db *DB) getUserWhere(ctx context.Context, column, value string) (*model.User, error) {
	var (
		u    model.User
		hash sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
	).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&hash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}

	u.PasswordHash = hash.String
	return &u, nil
}

// nullString stores "" as NULL so third-party accounts have no password hash
// at all rather than an empty one.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
