package models

// Email is a stored email address, shared between members and signups
type Email struct {
	ID    int64
	Email string
}

// Phone is a stored phone number, shared between members and signups
type Phone struct {
	ID    int64
	Phone string
}
