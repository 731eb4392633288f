// Package postgres implements the repository interfaces on PostgreSQL with gorm.
//
// It is the alternative to repository/sqlite for deployments that already run
// a Postgres server. The state column is jsonb.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/xid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/macleann/fountainheadapi/internal/apperror"
	"github.com/macleann/fountainheadapi/internal/model"
	"github.com/macleann/fountainheadapi/internal/repository"
)

var (
	_ repository.UserRepository      = (*Store)(nil)
	_ repository.GameStateRepository = (*Store)(nil)
)

// Postgres SQLSTATE codes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store wraps a gorm DB instance.
type Store struct {
	db *gorm.DB
}

// New connects to dsn and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	if err := db.AutoMigrate(&userRecord{}, &gameStateRecord{}); err != nil {
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateWithState inserts the user and its document in one transaction.
func (s *Store) CreateWithState(ctx context.Context, user *model.User, state json.RawMessage) (*model.GameState, error) {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	rec := fromUser(user)
	doc := gameStateRecord{
		ID:          xid.New().String(),
		UserID:      user.ID,
		State:       datatypes.JSON(state),
		LastUpdated: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return translateUserInsertErr(err)
		}
		// Omit the association so gorm does not try to upsert the user again.
		return tx.Omit(clause.Associations).Create(&doc).Error
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("postgres: creating user %q: %w", user.Username, err)
	}

	return doc.toModel(), nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUserWhere(ctx, "id", id)
}

// GetByUsername retrieves a user by login handle.
func (s *Store) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUserWhere(ctx, "username", username)
}

// GetByEmail retrieves a user by (already normalized) email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUserWhere(ctx, "email", email)
}

func (s *Store) getUserWhere(ctx context.Context, column, value string) (*model.User, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).Where(column+" = ?", value).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", column, err)
	}
	return rec.toModel(), nil
}

// GetOrCreate inserts a default document unless one exists, then reads it.
// ON CONFLICT DO NOTHING makes concurrent first accesses converge on one row.
func (s *Store) GetOrCreate(ctx context.Context, userID string, defaultState json.RawMessage) (*model.GameState, error) {
	rec := gameStateRecord{
		ID:          xid.New().String(),
		UserID:      userID,
		State:       datatypes.JSON(defaultState),
		LastUpdated: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&rec).Error
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("postgres: creating game state for user %s: %w", userID, err)
	}
	return s.getGameState(ctx, userID)
}

// Save upserts the document's state and timestamp in one statement.
func (s *Store) Save(ctx context.Context, userID string, state json.RawMessage) (*model.GameState, error) {
	rec := gameStateRecord{
		ID:          xid.New().String(),
		UserID:      userID,
		State:       datatypes.JSON(state),
		LastUpdated: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "last_updated"}),
		}).
		Create(&rec).Error
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("postgres: saving game state for user %s: %w", userID, err)
	}
	return s.getGameState(ctx, userID)
}

func (s *Store) getGameState(ctx context.Context, userID string) (*model.GameState, error) {
	var rec gameStateRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("game state", userID)
		}
		return nil, fmt.Errorf("postgres: reading game state for user %s: %w", userID, err)
	}
	return rec.toModel(), nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// translateUserInsertErr maps unique violations to conflicts using the index
// names declared on userRecord.
func translateUserInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return apperror.Conflict("email", "A user with this email already exists.")
	case strings.Contains(pgErr.ConstraintName, "username"):
		return apperror.Conflict("username", "A user with this username already exists.")
	}
	return err
}
