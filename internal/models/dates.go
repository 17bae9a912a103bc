package models

import "time"

// MembershipLength is how long a membership created from a signup lasts
const MembershipLength = 365 * 24 * time.Hour

// DateOf truncates t to its calendar date, expressed as midnight UTC.
// Membership dates are stored this way so equal dates compare equal in every dialect.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the UTC calendar date of the instant now, whatever its zone
func Today(now time.Time) time.Time {
	return DateOf(now.UTC())
}

// FormatDate renders a calendar date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
