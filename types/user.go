package types

import "time"

// DefaultNickname is used when a user has not chosen a display name yet.
const DefaultNickname = "anonymous"

// User represents an account in the system.
// The surrogate ID never leaves the process; PublicID is the identifier
// exposed through the API.
type User struct {
	// ID is the store-assigned surrogate identifier of the user.
	ID int `json:"-" db:"id"`

	// PublicID is the stable externally-visible identifier.
	PublicID string `json:"uuid" db:"public_id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// Nickname is the user's display name.
	Nickname string `json:"nickname" db:"nickname"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Deleted marks the account as soft-deleted. Soft-deleted users are
	// invisible to every read path except physical cleanup tooling.
	Deleted bool `json:"-" db:"is_deleted"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_on" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}
