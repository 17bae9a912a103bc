package repository

import (
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrAllocationConflict means a generated member number or key was taken by a
	// concurrent insert; the whole allocation should be retried.
	ErrAllocationConflict = errors.New("member number or key already allocated")

	// ErrDuplicateMembership means the member already has this type starting on this date
	ErrDuplicateMembership = errors.New("membership with this member, type and start date already exists")

	// ErrDuplicateUsername means an account with the username exists
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrDuplicateSite means a site with the domain exists
	ErrDuplicateSite = errors.New("site with this domain already exists")
)

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

// nullIfEmpty stores empty optional text as NULL
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
