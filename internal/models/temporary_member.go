package models

import (
	"fmt"
	"strings"
	"time"

	"guildmembers/internal/validation"
)

// TemporaryMember is a signup submission. Anybody can complete the form, so it
// stays unvetted until staff approve it and convert it into a Member.
type TemporaryMember struct {
	ID        int64
	CreatedAt time.Time

	// Approval, set by staff
	IsChecked             bool
	IsApprovedPaid        bool
	ApprovedPaymentMethod string
	ApprovedBy            *int64
	ApprovedAt            *time.Time

	// Payment type chosen by the applicant, checked by staff
	PaymentMethod string
	PaymentSource string

	// MemberID links the member created on conversion
	MemberID   *int64
	MemberType string

	// Details copied to the member on conversion
	Name         string
	SortName     string
	RefName      string
	Notes        string
	EmailID      *int64
	Email        string
	PhoneID      *int64
	Phone        string
	Address      string
	Suburb       string
	Postcode     string
	State        string
	Country      string
	Year         int
	DOB          *time.Time
	LegacySource string

	// Survey answers, only kept here
	SurveyGames       string
	SurveyFood        string
	SurveyHear        string
	SurveySuggestions string
}

// EnsureName fills Name from RefName and SortName when it is blank
func (t *TemporaryMember) EnsureName() {
	if strings.TrimSpace(t.Name) == "" {
		t.Name = FullName(t.RefName, t.SortName)
	}
}

// Validate enforces the approval rule checked on every save
func (t *TemporaryMember) Validate() error {
	if t.IsApprovedPaid && (t.ApprovedBy == nil || t.ApprovedPaymentMethod == "") {
		return validation.ValidationError{
			Field:   "is_approved_paid",
			Message: "if approved, must have payment method and user",
		}
	}
	return nil
}

// IsConverted reports whether a member has already been created from this signup
func (t *TemporaryMember) IsConverted() bool {
	return t.MemberID != nil
}

// ToMember copies the replicable details into a new, unsaved Member
func (t *TemporaryMember) ToMember() *Member {
	m := &Member{
		Name:     t.Name,
		SortName: t.SortName,
		RefName:  t.RefName,
		Notes:    t.Notes,
		Address:  t.Address,
		Postcode: t.Postcode,
		Suburb:   t.Suburb,
		State:    t.State,
		Country:  t.Country,
	}
	if t.DOB != nil {
		dob := *t.DOB
		m.DOB = &dob
	}
	if t.Year != 0 {
		m.Year = t.Year
	}
	return m
}

func (t *TemporaryMember) String() string {
	approvedAt := "None"
	if t.ApprovedAt != nil {
		approvedAt = t.ApprovedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("%s: %s %s [%s]", t.MemberType, t.RefName, t.SortName, approvedAt)
}
