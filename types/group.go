package types

import "time"

// Group is a named role users can belong to. Permissions are granted to
// groups, never to users directly.
type Group struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Deleted   bool      `json:"-" db:"is_deleted"`
	CreatedAt time.Time `json:"created_on" db:"created_at"`
}
