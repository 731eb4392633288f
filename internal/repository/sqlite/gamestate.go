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

var _ repository.GameStateRepository = (*DB)(nil)

// GetOrCreate returns the user's game document, creating it with
// defaultState when missing.
//
// INSERT-OR-FETCH:
// A check-then-insert ("SELECT, and INSERT if nothing came back") has a race:
// two requests can both see no row and both INSERT. Here the INSERT always
// runs first with ON CONFLICT(user_id) DO NOTHING. Whichever request gets
// there first creates the row; every other request's INSERT silently does
// nothing. The SELECT afterwards then returns the single surviving row to
// everyone.
func (db *DB) GetOrCreate(ctx context.Context, userID string, defaultState json.RawMessage) (*model.GameState, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO game_states (id, user_id, state, last_updated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		xid.New().String(),
		userID,
		string(defaultState),
		time.Now().UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("sqlite: creating game state for user %s: %w", userID, err)
	}

	return db.getGameState(ctx, userID)
}

// Save writes state as the user's document in a single upsert statement.
// If the statement fails nothing is written, so the previous value survives.
func (db *DB) Save(ctx context.Context, userID string, state json.RawMessage) (*model.GameState, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO game_states (id, user_id, state, last_updated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			last_updated = excluded.last_updated`,
		xid.New().String(),
		userID,
		string(state),
		time.Now().UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("sqlite: saving game state for user %s: %w", userID, err)
	}

	return db.getGameState(ctx, userID)
}

func (db *DB) getGameState(ctx context.Context, userID string) (*model.GameState, error) {
	return db.scanGameState(db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, state, last_updated FROM game_states WHERE user_id = ?`,
		userID,
	), userID)
}

func (db *DB) scanGameState(row *sql.Row, userID string) (*model.GameState, error) {
	var (
		doc   model.GameState
		state string
	)
	if err := row.Scan(&doc.ID, &doc.UserID, &state, &doc.LastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("game state", userID)
		}
		return nil, fmt.Errorf("sqlite: reading game state for user %s: %w", userID, err)
	}
	doc.State = json.RawMessage(state)
	return &doc, nil
}
