package types

import "time"

// Well-known permission texts referenced by the HTTP layer.
const (
	PermDeleteUsers  = "can delete users"
	PermViewUsers    = "can view users"
	PermManageGroups = "can manage groups"
)

// Permission is a named capability that groups grant to their members.
type Permission struct {
	ID        int       `json:"id" db:"id"`
	Text      string    `json:"permission" db:"permission"`
	Deleted   bool      `json:"-" db:"is_deleted"`
	CreatedAt time.Time `json:"created_on" db:"created_at"`
}
