// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered player account.
//
// Email is the deduplication key across the password and third-party login
// paths: a player who registered with a password and later signs in with
// Google lands on the same row. Emails are stored trimmed and lower-cased.
//
// WHY PasswordHash IS NOT SERIALIZED:
// The `json:"-"` tag keeps the bcrypt hash out of every API response, even if
// a handler accidentally encodes the whole struct. An empty hash means the
// account was created through a third-party provider and has no usable
// local password.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasUsablePassword reports whether the account can log in with a password.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}
