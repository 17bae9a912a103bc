package models

import "time"

// User is a login account. Members get one keyed by their member number;
// staff accounts carry a password and may approve signups.
type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	IsStaff      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName returns the user's display name, falling back to the username
func (u *User) FullName() string {
	if name := FullName(u.FirstName, u.LastName); name != "" {
		return name
	}
	return u.Username
}
