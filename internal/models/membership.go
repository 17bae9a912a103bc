package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"guildmembers/internal/validation"
)

// MemberTypeSpecial marks a membership granted outside the normal types; it needs an explanation
const MemberTypeSpecial = "special"

// Membership is a dated grant of a membership type to a member
type Membership struct {
	ID         int64
	MemberID   int64
	MemberType string
	Special    string
	ValidFrom  time.Time
	// ValidUntil is the first day after expiry, e.g. Nov 2018 is stored as 2018-12-01.
	// Nil means the membership does not expire.
	ValidUntil *time.Time
	Note       string
}

// IsCurrent reports whether the membership is valid on now's calendar date
func (m *Membership) IsCurrent(now time.Time) bool {
	if m.ValidUntil == nil {
		return true
	}
	return !DateOf(*m.ValidUntil).Before(Today(now))
}

// Validate checks the membership against the configured member types
func (m *Membership) Validate(memberTypes []string) error {
	var errs validation.Errors
	if !slices.Contains(memberTypes, m.MemberType) {
		errs = append(errs, validation.ValidationError{
			Field:   "member_type",
			Message: fmt.Sprintf("unknown member type %q", m.MemberType),
		})
	}
	if m.MemberType == MemberTypeSpecial && strings.TrimSpace(m.Special) == "" {
		errs = append(errs, validation.ValidationError{
			Field:   "special",
			Message: "must add 'special' explanation for special memberships",
		})
	}
	if m.ValidUntil != nil && DateOf(*m.ValidUntil).Before(DateOf(m.ValidFrom)) {
		errs = append(errs, validation.ValidationError{
			Field:   "valid_until",
			Message: "must not be before valid_from",
		})
	}
	return errs.OrNil()
}

// Describe renders the membership for listings, e.g.
// "[standard] #12 Jane Doe (current) Expires: 2027-10-19"
func (m *Membership) Describe(member *Member, now time.Time) string {
	s := fmt.Sprintf("[%s] #%d %s", m.MemberType, member.Number, member.Name)
	switch {
	case !m.IsCurrent(now):
		return fmt.Sprintf("%s (renewable) Expired: %s", s, FormatDate(*m.ValidUntil))
	case m.ValidUntil != nil:
		return fmt.Sprintf("%s (current) Expires: %s", s, FormatDate(*m.ValidUntil))
	default:
		return fmt.Sprintf("%s [%s] (current)", s, m.Special)
	}
}

// MembershipTag records a physical tag or card handed over for a membership
type MembershipTag struct {
	ID           int64
	MembershipID int64
	GivenByID    int64
	GivenByName  string
	GivenAt      time.Time
	GivenTag     bool
	GivenCard    bool
}
