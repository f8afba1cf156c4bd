package domain

import (
	"strings"
	"time"
)

// Role is the single authority granted to a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Authority returns the role in the "ROLE_" form handed to downstream services.
func (r Role) Authority() string {
	return "ROLE_" + string(r)
}

// ParseRole accepts the role in any case; unknown values map to "" and false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// NewUser is a user that has not been stored yet.
type NewUser struct {
	Username     string
	PasswordHash string
	Role         Role
}

// User models a stored account. Username is email-shaped and unique.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
