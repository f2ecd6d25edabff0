package domain

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID              string
	Name            string
	Email           string
	PasswordHash    string
	Role            Role
	Image           string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u User) Verified() bool {
	return u.EmailVerifiedAt != nil
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

func (i Identity) IsAdmin() bool {
	return i.Authenticated() && i.Role == RoleAdmin
}
