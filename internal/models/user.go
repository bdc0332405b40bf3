package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RoleParticipant is the only role that can be checked in.
const RoleParticipant = "participant"

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string    `bun:"id,pk" json:"id"`
	FullName  string    `bun:"full_name,notnull" json:"full_name"`
	Email     string    `bun:"email,unique,notnull" json:"email"`
	Phone     string    `bun:"phone" json:"phone,omitempty"`
	College   string    `bun:"college" json:"college,omitempty"`
	Role      string    `bun:"role,notnull" json:"role"`
	IsActive  bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (u *User) IsParticipant() bool {
	return u.Role == RoleParticipant
}
