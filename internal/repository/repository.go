// Package repository declares the persistence contracts of the application.
//
// Services depend on these interfaces, never on a concrete database. Two
// implementations exist: repository/sqlite (the default, embedded) and
// repository/postgres (gorm over PostgreSQL).
package repository

import (
	"context"
	"encoding/json"

	"github.com/macleann/fountainheadapi/internal/model"
)

// UserRepository stores player accounts.
//
// Lookups return apperror.ErrNotFound when no row matches. Unique violations
// on username or email surface as apperror.ErrConflict with Field set to the
// offending column.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithState inserts the user and its game document in one
	// transaction. Either both rows exist afterwards or neither does.
	CreateWithState(ctx context.Context, user *model.User, state json.RawMessage) (*model.GameState, error)
}

// GameStateRepository stores the one-per-user game document.
//
// Both methods are single statements keyed on the UNIQUE user_id column, so
// concurrent callers never create duplicate rows. A userID that does not
// belong to any user yields apperror.ErrNotFound.
type GameStateRepository interface {
	// GetOrCreate returns the user's document, inserting one seeded with
	// defaultState if none exists. Losing an insert race is not an error:
	// the caller observes the winner's row.
	GetOrCreate(ctx context.Context, userID string, defaultState json.RawMessage) (*model.GameState, error)

	// Save upserts the user's document with state and a fresh timestamp.
	Save(ctx context.Context, userID string, state json.RawMessage) (*model.GameState, error)
}
