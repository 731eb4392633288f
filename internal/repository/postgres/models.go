package postgres

import (
	"time"

	"gorm.io/datatypes"

	"github.com/macleann/fountainheadapi/internal/model"
)

// userRecord is the gorm row for model.User.
type userRecord struct {
	ID           string  `gorm:"primaryKey;size:32"`
	Username     string  `gorm:"size:150;not null;uniqueIndex:idx_users_username"`
	Email        string  `gorm:"size:320;not null;uniqueIndex:idx_users_email"`
	FirstName    string  `gorm:"size:150;not null;default:''"`
	LastName     string  `gorm:"size:150;not null;default:''"`
	PasswordHash *string `gorm:"size:128"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

// gameStateRecord is the gorm row for model.GameState. The unique index on
// user_id backs the ON CONFLICT clauses in store.go.
type gameStateRecord struct {
	ID          string         `gorm:"primaryKey;size:32"`
	UserID      string         `gorm:"size:32;not null;uniqueIndex:idx_game_states_user_id"`
	User        userRecord     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;"`
	State       datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	LastUpdated time.Time      `gorm:"not null"`
}

func (gameStateRecord) TableName() string { return "game_states" }

func fromUser(u *model.User) userRecord {
	rec := userRecord{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.PasswordHash != "" {
		hash := u.PasswordHash
		rec.PasswordHash = &hash
	}
	return rec
}

func (r userRecord) toModel() *model.User {
	u := &model.User{
		ID:        r.ID,
		Username:  r.Username,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.PasswordHash != nil {
		u.PasswordHash = *r.PasswordHash
	}
	return u
}

// toModel converts the row. jsonb normalizes whitespace and key order on
// storage, so the state is re-normalized by the service on read anyway.
func (r gameStateRecord) toModel() *model.GameState {
	return &model.GameState{
		ID:          r.ID,
		UserID:      r.UserID,
		State:       []byte(r.State),
		LastUpdated: r.LastUpdated,
	}
}
