package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultCountry is used for members and signups that do not state one
const DefaultCountry = "Australia"

// Member represents a confirmed, numbered club member
type Member struct {
	ID           int64
	UserID       *int64
	Number       int64
	Name         string
	SortName     string // surname
	RefName      string // first name
	Title        string
	Notes        string
	PrivateNotes string
	Address      string
	Postcode     string
	Suburb       string
	State        string
	Country      string
	Year         int
	DOB          *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IsCurrent    bool
	Key          string
	LegacySource string
	SiteID       int64
}

// FullName joins first name and surname
func FullName(refName, sortName string) string {
	return strings.TrimSpace(refName + " " + sortName)
}

// EnsureName fills Name from RefName and SortName when it is blank
func (m *Member) EnsureName() {
	if strings.TrimSpace(m.Name) == "" {
		m.Name = FullName(m.RefName, m.SortName)
	}
}

// Label formats the member as "#12 Jane Doe", with " (active)" appended for active members
func (m *Member) Label(active bool) string {
	label := fmt.Sprintf("#%d %s", m.Number, m.Name)
	if active {
		return label + " (active)"
	}
	return label
}
